package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/server/config"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/migration"
)

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// New открывает пул соединений и накатывает миграции схемы.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	pool, err := pgxpool.New(ctx, cfg.DB.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	runner := migration.NewRunner(cfg.DB.Migrations, cfg.DB.DatabaseURI, migration.DefaultEngine, log)
	if _, err := runner.Up(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Storage{pool: pool, db: stdlib.OpenDBFromPool(pool)}, nil
}

func (s *Storage) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

// DB возвращает database/sql поверх того же пула.
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
