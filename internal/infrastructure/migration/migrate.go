// Package migration накатывает схему серверного хранилища списков и задач.
package migration

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// драйверы источника и базы регистрируются при импорте
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"golang.org/x/exp/slog"
)

// Migrator покрывает ту часть migrate.Migrate, которая нужна для запуска
type Migrator interface {
	Up() error
	Version() (uint, bool, error)
	Close() (error, error)
}

// Engine создает мигратор по адресу каталога миграций и DSN. В тестах подменяется.
type Engine func(sourceURL, databaseURL string) (Migrator, error)

func DefaultEngine(sourceURL, databaseURL string) (Migrator, error) {
	return migrate.New(sourceURL, databaseURL)
}

type Runner struct {
	dir    string
	dsn    string
	engine Engine
	log    *slog.Logger
}

// NewRunner готовит запуск миграций из каталога dir для базы dsn
func NewRunner(dir, dsn string, engine Engine, log *slog.Logger) *Runner {
	if engine == nil {
		engine = DefaultEngine
	}
	return &Runner{
		dir:    dir,
		dsn:    dsn,
		engine: engine,
		log:    log.With(slog.String("component", "migration")),
	}
}

// Up накатывает недостающие миграции и возвращает итоговую версию схемы.
// Отсутствие изменений ошибкой не считается, грязная схема считается.
func (r *Runner) Up() (version uint, err error) {
	m, err := r.engine("file://"+r.dir, r.dsn)
	if err != nil {
		return 0, err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			err = errors.Join(err, fmt.Errorf("migration source error: %w", serr))
		}
		if dberr != nil {
			err = errors.Join(err, fmt.Errorf("migration database error: %w", dberr))
		}
	}()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migration up error: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("migration version error: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	r.log.Info("schema is up to date",
		slog.Uint64("version", uint64(version)),
		slog.Bool("changed", upErr == nil))
	return version, nil
}
