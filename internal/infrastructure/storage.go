package infrastructure

import (
	"fmt"

	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

// Storage owns the outbox's backing Postgres connection pool.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(cfg config.StorageConfig) (*Storage, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
		int(cfg.ConnectTimeout.Seconds()),
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &Storage{db: db}, nil
}

func (s *Storage) GetDB() (*sqlx.DB, error) {
	if s.db == nil {
		return nil, fmt.Errorf("storage not initialized")
	}

	return s.db, nil
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}
