package client

import (
	"context"
	"time"

	"golang.org/x/exp/slog"
)

// SyncStatus: состояние движка вместе с размером очереди
type SyncStatus struct {
	Status
	Pending  int        `json:"pending"`
	Bookmark *time.Time `json:"bookmark,omitempty"`
}

// Sync выполняет один цикл синхронизации текущего uid
func (a *App) Sync(ctx context.Context) (*SyncResult, error) {
	acct, err := a.Account(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.Sync(ctx, acct)
}

func (a *App) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := a.store.Outbox.Pending(ctx, uid)
	if err != nil {
		return nil, err
	}
	bookmark, err := a.store.Meta.Bookmark(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &SyncStatus{Status: a.engine.Status(uid), Pending: pending, Bookmark: bookmark}, nil
}

// OutboxEntries возвращает ожидающие отправки записи в порядке постановки
func (a *App) OutboxEntries(ctx context.Context) ([]Entry, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	return a.store.Outbox.Drain(ctx, uid)
}

// DropOutboxEntry удаляет запись без отправки. Локальная строка реплики остается как есть
// до следующего полного чтения.
func (a *App) DropOutboxEntry(ctx context.Context, id int64) error {
	uid, err := a.UID(ctx)
	if err != nil {
		return err
	}
	return a.store.Outbox.Discard(ctx, uid, id)
}

// ResetBookmark заставляет следующий цикл прочитать всю историю с сервера
func (a *App) ResetBookmark(ctx context.Context) error {
	uid, err := a.UID(ctx)
	if err != nil {
		return err
	}
	return a.store.Meta.ResetBookmark(ctx, uid)
}

// StartAutoSync запускает периодическую синхронизацию до отмены ctx
func (a *App) StartAutoSync(ctx context.Context, interval time.Duration) (<-chan struct{}, error) {
	acct, err := a.Account(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.StartAutoSync(ctx, acct, interval), nil
}

// Watch слушает ленту изменений сервера и запускает цикл на каждое событие.
// onSync получает результат каждого цикла; повторный запуск во время цикла пропускается.
func (a *App) Watch(ctx context.Context, onSync func(*SyncResult, error)) error {
	if a.api == nil {
		return ErrNoServer
	}
	acct, err := a.Account(ctx)
	if err != nil {
		return err
	}

	w := NewWatcher(a.api.ChangesURL(), a.api.Headers(acct.UID), a.log)
	return w.Watch(ctx, func(ev ChangeEvent) {
		a.log.Debug("change received", slog.String("entity", string(ev.Entity)))
		res, err := a.engine.Sync(ctx, acct)
		if onSync != nil {
			onSync(res, err)
		}
	})
}

// CheckConnection проверяет соединение с сервером
func (a *App) CheckConnection(ctx context.Context) error {
	if a.api == nil {
		return ErrNoServer
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.api.HealthCheck(ctx)
}
