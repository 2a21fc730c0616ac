package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tob-party-sync/internal/config"
	"github.com/DoyleJ11/tob-party-sync/internal/httpapi"
	"github.com/DoyleJ11/tob-party-sync/internal/hub"
	"github.com/DoyleJ11/tob-party-sync/internal/logging"
	"github.com/DoyleJ11/tob-party-sync/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	path := os.Getenv("PARTYSYNC_CONFIG")
	if path == "" {
		path = "partysync.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal httpapi.Journal
	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, st.Close()) }()
		journal = st
		logger.Info("group change journal enabled")
	}

	// Sessions outlive the signal context so shutdown can still leave groups.
	h := hub.NewHub(context.Background(), cfg.Sync.SessionOptions(), logger)

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			Policy:  cfg.Sync.Policy(),
			Journal: journal,
			Log:     logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		done := make(chan error, 1)
		h.Inbox() <- hub.ShutdownHub{Done: done}
		hubErr := <-done
		if hubErr != nil {
			logger.Warn("some sessions failed to leave their group", zap.Error(hubErr))
		}

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
