package client

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/mammuth/gravity-tasks/internal/infrastructure/dbx"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations накатывает схему реплики
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate replica: %w", err)
	}
	return nil
}

// OpenDB открывает базу реплики и применяет миграции.
// driver: "sqlite3" (mattn) в рабочем клиенте или "sqlite" (modernc) в тестах.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	// SQLite допускает одного писателя; одно соединение также сохраняет :memory: базу.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Store объединяет реплику, outbox и метаданные поверх одного соединения.
type Store struct {
	db      *sql.DB
	Replica *Replica
	Outbox  *Outbox
	Meta    *Meta
}

func NewStore(db *sql.DB) *Store {
	return newStore(db, db)
}

func newStore(db *sql.DB, q dbx.DBTX) *Store {
	return &Store{
		db:      db,
		Replica: NewReplica(q),
		Outbox:  NewOutbox(q),
		Meta:    NewMeta(q),
	}
}

// WithinTx выполняет fn в одной транзакции: изменения реплики и outbox фиксируются вместе.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, q dbx.DBTX) error {
		return fn(ctx, newStore(nil, q))
	})
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
