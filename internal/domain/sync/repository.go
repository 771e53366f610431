package sync

import (
	"context"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

// Repository: хранилище записей сервера.
type Repository interface {
	// FindList ищет список по id без учета владельца. ErrNotFound, если нет.
	FindList(ctx context.Context, id string) (*list.List, error)
	// InsertList создает строку. ErrAlreadyExists, если id занят.
	InsertList(ctx context.Context, l *list.List) error
	// UpdateList записывает строку, только если сохраненная ревизия равна expectedRevision,
	// иначе ErrRevisionConflict.
	UpdateList(ctx context.Context, l *list.List, expectedRevision int64) error
	// ListListsSince возвращает списки uid, у которых updated_at или deleted_at позже since.
	ListListsSince(ctx context.Context, uid string, since *time.Time) ([]list.List, error)

	FindTask(ctx context.Context, id string) (*task.Task, error)
	InsertTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task, expectedRevision int64) error
	ListTasksSince(ctx context.Context, uid string, since *time.Time) ([]task.Task, error)

	// TombstoneTasksByList помечает удаленными все задачи uid со списком listID,
	// не меняя их ревизию.
	TombstoneTasksByList(ctx context.Context, uid, listID string, deletedAt, now time.Time) (int64, error)

	// WithinTx выполняет fn атомарно относительно других WithinTx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Notifier получает сигнал о принятых изменениях пользователя.
type Notifier interface {
	Notify(uid string, kind Kind)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Kind) {}
