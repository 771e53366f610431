package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/dbx"
)

// SyncRepository реализация хранилища записей для PostgreSQL
type SyncRepository struct {
	db   dbx.DBTX
	conn *sql.DB
	log  *slog.Logger
}

var _ sync.Repository = (*SyncRepository)(nil)

// NewSyncRepository создает новый репозиторий синхронизации
func NewSyncRepository(db *sql.DB, log *slog.Logger) *SyncRepository {
	return &SyncRepository{
		db:   db,
		conn: db,
		log:  log.With(slog.String("component", "sync_repository")),
	}
}

// WithinTx выполняет fn в транзакции. Внутри транзакции вложенный вызов
// использует ту же транзакцию.
func (r *SyncRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo sync.Repository) error) error {
	if r.conn == nil {
		return fn(ctx, r)
	}
	return dbx.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &SyncRepository{db: tx, log: r.log})
	})
}

// TombstoneTasksByList помечает удаленными задачи списка. Ревизия задач не меняется.
func (r *SyncRepository) TombstoneTasksByList(ctx context.Context, uid, listID string, deletedAt, now time.Time) (int64, error) {
	query := `
		UPDATE tasks
		SET deleted_at = $3, updated_at = $4
		WHERE uid = $1 AND list_id = $2
	`

	res, err := r.db.ExecContext(ctx, query, uid, listID, deletedAt, now)
	if err != nil {
		return 0, fmt.Errorf("failed to tombstone tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	r.log.Debug("tasks tombstoned", slog.String("list_id", listID), slog.Int64("count", n))
	return n, nil
}

// affected переводит число измененных строк в ошибку: 0 строк означает errZero.
func affected(res sql.Result, errZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return errZero
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}
