package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mammuth/gravity-tasks/internal/infrastructure/dbx"
)

const (
	bookmarkKeyPrefix   = "last_sync_at:"
	activeListKeyPrefix = "active_list_id:"
	sessionUIDKey       = "session_uid"
)

// Meta хранит служебные значения клиента: закладку синхронизации,
// активный список и uid текущей сессии.
type Meta struct {
	db dbx.DBTX
}

func NewMeta(db dbx.DBTX) *Meta {
	return &Meta{db: db}
}

// Get возвращает "" без ошибки, если ключа нет.
func (m *Meta) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta[%s]: %w", key, err)
	}
	return value, nil
}

func (m *Meta) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta[%s]: %w", key, err)
	}
	return nil
}

func (m *Meta) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete meta[%s]: %w", key, err)
	}
	return nil
}

// Bookmark возвращает nil, пока uid ни разу не синхронизировался.
func (m *Meta) Bookmark(ctx context.Context, uid string) (*time.Time, error) {
	v, err := m.Get(ctx, bookmarkKeyPrefix+uid)
	if err != nil || v == "" {
		return nil, err
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *Meta) SetBookmark(ctx context.Context, uid string, t time.Time) error {
	return m.Set(ctx, bookmarkKeyPrefix+uid, formatTime(t))
}

// ResetBookmark заставляет следующую синхронизацию прочитать всю историю.
func (m *Meta) ResetBookmark(ctx context.Context, uid string) error {
	return m.Delete(ctx, bookmarkKeyPrefix+uid)
}

func (m *Meta) ActiveListID(ctx context.Context, uid string) (string, error) {
	return m.Get(ctx, activeListKeyPrefix+uid)
}

func (m *Meta) SetActiveListID(ctx context.Context, uid, listID string) error {
	return m.Set(ctx, activeListKeyPrefix+uid, listID)
}

func (m *Meta) SessionUID(ctx context.Context) (string, error) {
	return m.Get(ctx, sessionUIDKey)
}

func (m *Meta) SetSessionUID(ctx context.Context, uid string) error {
	return m.Set(ctx, sessionUIDKey, uid)
}
