package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/dbx"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForeignRow = errors.New("row belongs to another uid")
)

// TaskFilter ограничивает выборку задач. Пустые поля не фильтруют.
type TaskFilter struct {
	ListID         string
	Status         task.Status
	IncludeDeleted bool
}

// Replica: локальная копия списков и задач. Все запросы ограничены uid.
type Replica struct {
	db dbx.DBTX
}

func NewReplica(db dbx.DBTX) *Replica {
	return &Replica{db: db}
}

const listColumns = `id, uid, name, position, deleted_at, revision, created_at, updated_at`

const taskColumns = `id, uid, list_id, title, description, status, position,
	done_at, archived_at, deleted_at, revision, created_at, updated_at`

func (r *Replica) Lists(ctx context.Context, uid string, includeDeleted bool) ([]list.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE uid = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY position DESC, created_at, id`

	rows, err := r.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var out []list.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *Replica) GetList(ctx context.Context, uid, id string) (*list.List, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE uid = ? AND id = ?`, uid, id)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// PutList вставляет или целиком перезаписывает список по id.
func (r *Replica) PutList(ctx context.Context, l *list.List) error {
	return putList(ctx, r.db, l)
}

// BulkPutLists перезаписывает строки одной транзакцией.
// Строка чужого uid отклоняет весь набор.
func (r *Replica) BulkPutLists(ctx context.Context, uid string, rows []list.List) error {
	for i := range rows {
		if rows[i].UID != uid {
			return fmt.Errorf("%w: list %s", ErrForeignRow, rows[i].ID)
		}
	}
	return r.batch(ctx, func(q dbx.DBTX) error {
		for i := range rows {
			if err := putList(ctx, q, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Replica) Tasks(ctx context.Context, uid string, f TaskFilter) ([]task.Task, error) {
	var (
		where = []string{"uid = ?"}
		args  = []any{uid}
	)
	if f.ListID != "" {
		where = append(where, "list_id = ?")
		args = append(args, f.ListID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY position DESC, created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Replica) GetTask(ctx context.Context, uid, id string) (*task.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uid = ? AND id = ?`, uid, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *Replica) PutTask(ctx context.Context, t *task.Task) error {
	return putTask(ctx, r.db, t)
}

func (r *Replica) BulkPutTasks(ctx context.Context, uid string, rows []task.Task) error {
	for i := range rows {
		if rows[i].UID != uid {
			return fmt.Errorf("%w: task %s", ErrForeignRow, rows[i].ID)
		}
	}
	return r.batch(ctx, func(q dbx.DBTX) error {
		for i := range rows {
			if err := putTask(ctx, q, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// batch открывает собственную транзакцию, если реплика еще не работает внутри чужой.
func (r *Replica) batch(ctx context.Context, fn func(q dbx.DBTX) error) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, func(_ context.Context, tx dbx.DBTX) error {
			return fn(tx)
		})
	}
	return fn(r.db)
}

func putList(ctx context.Context, q dbx.DBTX, l *list.List) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO lists (`+listColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uid = excluded.uid,
			name = excluded.name,
			position = excluded.position,
			deleted_at = excluded.deleted_at,
			revision = excluded.revision,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		l.ID, l.UID, l.Name, l.Position, formatNullTime(l.DeletedAt), l.Revision,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put list %s: %w", l.ID, err)
	}
	return nil
}

func putTask(ctx context.Context, q dbx.DBTX, t *task.Task) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uid = excluded.uid,
			list_id = excluded.list_id,
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			position = excluded.position,
			done_at = excluded.done_at,
			archived_at = excluded.archived_at,
			deleted_at = excluded.deleted_at,
			revision = excluded.revision,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		t.ID, t.UID, t.ListID, t.Title, t.Description, string(t.Status), t.Position,
		formatNullTime(t.DoneAt), formatNullTime(t.ArchivedAt), formatNullTime(t.DeletedAt),
		t.Revision, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put task %s: %w", t.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanList(s scanner) (*list.List, error) {
	var (
		l                    list.List
		deletedAt            sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&l.ID, &l.UID, &l.Name, &l.Position, &deletedAt, &l.Revision, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan list: %w", err)
	}

	var err error
	if l.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanTask(s scanner) (*task.Task, error) {
	var (
		t                             task.Task
		status                        string
		doneAt, archivedAt, deletedAt sql.NullString
		createdAt, updatedAt          string
	)
	err := s.Scan(&t.ID, &t.UID, &t.ListID, &t.Title, &t.Description, &status, &t.Position,
		&doneAt, &archivedAt, &deletedAt, &t.Revision, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Status = task.Status(status)

	if t.DoneAt, err = parseNullTime(doneAt); err != nil {
		return nil, err
	}
	if t.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return nil, err
	}
	if t.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Метки времени хранятся текстом RFC 3339 в UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
