package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/tob-party-sync/internal/engine"
	"github.com/DoyleJ11/tob-party-sync/internal/resolver"
	"github.com/DoyleJ11/tob-party-sync/internal/session"
)

// Config is read from defaults, then .env, then the YAML file, then the
// environment. Later sources win.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"PARTYSYNC_LISTEN_ADDR"`
	DatabaseURL string `yaml:"database_url" env:"PARTYSYNC_DATABASE_URL"`
	LogLevel    string `yaml:"log_level" env:"PARTYSYNC_LOG_LEVEL"`
	LogDev      bool   `yaml:"log_dev" env:"PARTYSYNC_LOG_DEV"`
	Sync        Sync   `yaml:"sync"`
}

// Sync holds the defaults every session starts with.
type Sync struct {
	AutoLeaveOnExit     bool          `yaml:"auto_leave_on_exit" env:"PARTYSYNC_AUTO_LEAVE_ON_EXIT"`
	EnableNotifications bool          `yaml:"enable_notifications" env:"PARTYSYNC_ENABLE_NOTIFICATIONS"`
	ForceJoinMode       bool          `yaml:"force_join_mode" env:"PARTYSYNC_FORCE_JOIN_MODE"`
	StalenessWindow     time.Duration `yaml:"staleness_window" env:"PARTYSYNC_STALENESS_WINDOW"`
	RecheckTicks        int           `yaml:"recheck_ticks" env:"PARTYSYNC_RECHECK_TICKS"`
	JoinGrace           time.Duration `yaml:"join_grace" env:"PARTYSYNC_JOIN_GRACE"`
}

func Default() Config {
	p := engine.DefaultPolicy()
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Sync: Sync{
			AutoLeaveOnExit:     p.AutoLeaveOnExit,
			EnableNotifications: p.EnableNotifications,
			ForceJoinMode:       p.ForceJoinMode,
			StalenessWindow:     resolver.DefaultStalenessWindow,
			RecheckTicks:        p.RecheckTicks,
			JoinGrace:           session.DefaultJoinGrace,
		},
	}
}

// Load builds the config. A missing .env or YAML file is not an error; an
// empty path skips the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var err error
	if c.ListenAddr == "" {
		err = multierr.Append(err, errors.New("listen_addr is required"))
	}
	if c.Sync.RecheckTicks <= 0 {
		err = multierr.Append(err, fmt.Errorf("recheck_ticks must be positive, got %d", c.Sync.RecheckTicks))
	}
	if c.Sync.StalenessWindow < 0 {
		err = multierr.Append(err, fmt.Errorf("staleness_window must not be negative, got %s", c.Sync.StalenessWindow))
	}
	if c.Sync.JoinGrace < 0 {
		err = multierr.Append(err, fmt.Errorf("join_grace must not be negative, got %s", c.Sync.JoinGrace))
	}
	return err
}

func (s Sync) Policy() engine.Policy {
	return engine.Policy{
		AutoLeaveOnExit:     s.AutoLeaveOnExit,
		EnableNotifications: s.EnableNotifications,
		ForceJoinMode:       s.ForceJoinMode,
		RecheckTicks:        s.RecheckTicks,
	}
}

func (s Sync) SessionOptions() session.Options {
	return session.Options{
		Policy:          s.Policy(),
		StalenessWindow: s.StalenessWindow,
		JoinGrace:       s.JoinGrace,
	}
}
