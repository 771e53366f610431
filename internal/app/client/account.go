package client

import (
	"context"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

// ReplicaWriter: часть реплики, в которую движок пишет результат чтения.
type ReplicaWriter interface {
	BulkPutLists(ctx context.Context, uid string, rows []list.List) error
	BulkPutTasks(ctx context.Context, uid string, rows []task.Task) error
}

// OutboxQueue: часть outbox, которой владеет движок во время выгрузки.
type OutboxQueue interface {
	Drain(ctx context.Context, uid string) ([]Entry, error)
	Ack(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, ids []int64, msg string) error
}

type BookmarkStore interface {
	Bookmark(ctx context.Context, uid string) (*time.Time, error)
	SetBookmark(ctx context.Context, uid string, t time.Time) error
}

// Account: состояние синхронизации одного пользователя: его реплика,
// очередь и закладка. Движок получает его явно и не держит глобального состояния.
type Account struct {
	UID       string
	Replica   ReplicaWriter
	Outbox    OutboxQueue
	Bookmarks BookmarkStore
}

// NewAccount собирает Account поверх общего хранилища клиента.
func NewAccount(uid string, s *Store) *Account {
	return &Account{
		UID:       uid,
		Replica:   s.Replica,
		Outbox:    s.Outbox,
		Bookmarks: s.Meta,
	}
}
