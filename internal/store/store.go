package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultHistoryLimit = 50

var ErrNoClient = errors.New("client id is required")

// GroupChange is one join or leave a session asked the host for.
type GroupChange struct {
	ID        uint   `gorm:"primaryKey"`
	ClientID  string `gorm:"size:64;not null;index:idx_group_changes_client_created,priority:1"`
	Action    string `gorm:"size:16;not null"`
	Group     string `gorm:"column:group_name;size:64"`
	Canonical bool
	Error     string
	CreatedAt time.Time `gorm:"index:idx_group_changes_client_created,priority:2"`
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres and migrates the journal table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return New(db, log)
}

func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&GroupChange{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Record(ctx context.Context, c *GroupChange) error {
	if c.ClientID == "" {
		return ErrNoClient
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("record %s %s: %w", c.Action, c.Group, err)
	}
	return nil
}

// RecordChange lets the store serve as a session recorder.
func (s *Store) RecordChange(ctx context.Context, clientID, action, group string, canonical bool, cause error) error {
	c := &GroupChange{
		ClientID:  clientID,
		Action:    action,
		Group:     group,
		Canonical: canonical,
	}
	if cause != nil {
		c.Error = cause.Error()
	}
	return s.Record(ctx, c)
}

// History returns a client's most recent changes, newest first.
func (s *Store) History(ctx context.Context, clientID string, limit int) ([]GroupChange, error) {
	if clientID == "" {
		return nil, ErrNoClient
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var out []GroupChange
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", clientID, err)
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.log.Info("closing journal")
	return sqlDB.Close()
}
