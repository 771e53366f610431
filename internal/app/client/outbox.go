package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/dbx"
)

type Op string

const (
	OpUpsert Op = "upsert"
	// OpDelete: тоже upsert, но снимок несет deleted_at.
	OpDelete Op = "delete"
)

// Entry: неподтвержденная локальная мутация с полным снимком сущности.
type Entry struct {
	ID         int64           `json:"id"`
	UID        string          `json:"uid"`
	Entity     sync.Kind       `json:"entity"`
	Op         Op              `json:"op"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
}

func newListEntry(l *list.List, now time.Time) (*Entry, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list snapshot: %w", err)
	}
	op := OpUpsert
	if l.IsDeleted() {
		op = OpDelete
	}
	return &Entry{UID: l.UID, Entity: sync.KindList, Op: op, EntityID: l.ID, Payload: payload, CreatedAt: now}, nil
}

func newTaskEntry(t *task.Task, now time.Time) (*Entry, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task snapshot: %w", err)
	}
	op := OpUpsert
	if t.IsDeleted() {
		op = OpDelete
	}
	return &Entry{UID: t.UID, Entity: sync.KindTask, Op: op, EntityID: t.ID, Payload: payload, CreatedAt: now}, nil
}

// Outbox: очередь мутаций, ожидающих отправки на сервер.
type Outbox struct {
	db dbx.DBTX
}

func NewOutbox(db dbx.DBTX) *Outbox {
	return &Outbox{db: db}
}

// Enqueue добавляет запись в конец очереди и заполняет ее ID.
func (o *Outbox) Enqueue(ctx context.Context, e *Entry) error {
	res, err := o.db.ExecContext(ctx, `
		INSERT INTO outbox (uid, entity, op, entity_id, payload, created_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, 0, '')`,
		e.UID, string(e.Entity), string(e.Op), e.EntityID, []byte(e.Payload), formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", e.Entity, e.EntityID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read outbox id: %w", err)
	}
	e.ID = id
	return nil
}

// Drain возвращает все ожидающие записи uid в порядке постановки. Записи не удаляются.
func (o *Outbox) Drain(ctx context.Context, uid string) ([]Entry, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, uid, entity, op, entity_id, payload, created_at, retry_count, last_error
		FROM outbox WHERE uid = ? ORDER BY id`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to drain outbox: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			entity, op string
			payload    []byte
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.UID, &entity, &op, &e.EntityID, &payload, &createdAt, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Entity = sync.Kind(entity)
		e.Op = Op(op)
		e.Payload = json.RawMessage(payload)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ack удаляет записи, которые сервер успешно применил.
func (o *Outbox) Ack(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inArgs(ids)
	if _, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to ack outbox entries: %w", err)
	}
	return nil
}

// MarkFailed увеличивает счетчик попыток и запоминает последнюю ошибку.
func (o *Outbox) MarkFailed(ctx context.Context, ids []int64, msg string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inArgs(ids)
	args = append([]any{msg}, args...)
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entries: %w", err)
	}
	return nil
}

// Discard удаляет запись без отправки, например после конфликта владения.
func (o *Outbox) Discard(ctx context.Context, uid string, id int64) error {
	res, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE uid = ? AND id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("failed to discard outbox entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to discard outbox entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Pending возвращает число неподтвержденных записей uid.
func (o *Outbox) Pending(ctx context.Context, uid string) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE uid = ?`, uid).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return n, nil
}

func inArgs(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
