// Package memory: хранилище записей сервера в памяти процесса.
// Используется в режиме STORAGE=memory и в тестах сервиса согласования.
package memory

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

type Store struct {
	mu    gosync.RWMutex
	txMu  gosync.Mutex
	lists map[string]list.List
	tasks map[string]task.Task
}

var (
	_ sync.Repository = (*Store)(nil)
	_ sync.Repository = (*txRepo)(nil)
)

// New создает пустое хранилище
func New() *Store {
	return &Store{
		lists: make(map[string]list.List),
		tasks: make(map[string]task.Task),
	}
}

func (s *Store) FindList(_ context.Context, id string) (*list.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return nil, sync.ErrNotFound
	}
	return &l, nil
}

func (s *Store) InsertList(_ context.Context, l *list.List) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[l.ID]; ok {
		return sync.ErrAlreadyExists
	}
	s.lists[l.ID] = *l
	return nil
}

func (s *Store) UpdateList(_ context.Context, l *list.List, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.lists[l.ID]
	if !ok || cur.Revision != expectedRevision {
		return sync.ErrRevisionConflict
	}
	s.lists[l.ID] = *l
	return nil
}

func (s *Store) ListListsSince(_ context.Context, uid string, since *time.Time) ([]list.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]list.List, 0)
	for _, l := range s.lists {
		if l.UID == uid && changedSince(l.UpdatedAt, l.DeletedAt, since) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByUpdate(out[i].UpdatedAt, out[i].ID, out[j].UpdatedAt, out[j].ID)
	})
	return out, nil
}

func (s *Store) FindTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, sync.ErrNotFound
	}
	return &t, nil
}

func (s *Store) InsertTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return sync.ErrAlreadyExists
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *Store) UpdateTask(_ context.Context, t *task.Task, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[t.ID]
	if !ok || cur.Revision != expectedRevision {
		return sync.ErrRevisionConflict
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *Store) ListTasksSince(_ context.Context, uid string, since *time.Time) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]task.Task, 0)
	for _, t := range s.tasks {
		if t.UID == uid && changedSince(t.UpdatedAt, t.DeletedAt, since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByUpdate(out[i].UpdatedAt, out[i].ID, out[j].UpdatedAt, out[j].ID)
	})
	return out, nil
}

func (s *Store) TombstoneTasksByList(_ context.Context, uid, listID string, deletedAt, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tasks {
		if t.UID != uid || t.ListID != listID {
			continue
		}
		at := deletedAt
		t.DeletedAt = &at
		t.UpdatedAt = now
		s.tasks[id] = t
		n++
	}
	return n, nil
}

// WithinTx сериализует транзакции. Записи внутри fn идут через txRepo, который
// запоминает прежнее состояние каждой тронутой строки; при ошибке восстанавливаются
// только эти строки, параллельные записи вне транзакции сохраняются.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo sync.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txRepo{
		Store: s,
		lists: make(map[string]*list.List),
		tasks: make(map[string]*task.Task),
	}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// txRepo: вид хранилища внутри транзакции. Чтения идут напрямую в Store.
type txRepo struct {
	*Store
	// прежние значения строк; nil означает, что строки не было
	lists map[string]*list.List
	tasks map[string]*task.Task
}

func (tx *txRepo) InsertList(ctx context.Context, l *list.List) error {
	tx.mu.Lock()
	tx.rememberList(l.ID)
	tx.mu.Unlock()
	return tx.Store.InsertList(ctx, l)
}

func (tx *txRepo) UpdateList(ctx context.Context, l *list.List, expectedRevision int64) error {
	tx.mu.Lock()
	tx.rememberList(l.ID)
	tx.mu.Unlock()
	return tx.Store.UpdateList(ctx, l, expectedRevision)
}

func (tx *txRepo) InsertTask(ctx context.Context, t *task.Task) error {
	tx.mu.Lock()
	tx.rememberTask(t.ID)
	tx.mu.Unlock()
	return tx.Store.InsertTask(ctx, t)
}

func (tx *txRepo) UpdateTask(ctx context.Context, t *task.Task, expectedRevision int64) error {
	tx.mu.Lock()
	tx.rememberTask(t.ID)
	tx.mu.Unlock()
	return tx.Store.UpdateTask(ctx, t, expectedRevision)
}

func (tx *txRepo) TombstoneTasksByList(ctx context.Context, uid, listID string, deletedAt, now time.Time) (int64, error) {
	tx.mu.Lock()
	for id, t := range tx.Store.tasks {
		if t.UID == uid && t.ListID == listID {
			tx.rememberTask(id)
		}
	}
	tx.mu.Unlock()
	return tx.Store.TombstoneTasksByList(ctx, uid, listID, deletedAt, now)
}

// WithinTx внутри транзакции просто вызывает fn.
func (tx *txRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, repo sync.Repository) error) error {
	return fn(ctx, tx)
}

// rememberList вызывается под tx.mu.
func (tx *txRepo) rememberList(id string) {
	if _, seen := tx.lists[id]; seen {
		return
	}
	if cur, ok := tx.Store.lists[id]; ok {
		tx.lists[id] = &cur
		return
	}
	tx.lists[id] = nil
}

func (tx *txRepo) rememberTask(id string) {
	if _, seen := tx.tasks[id]; seen {
		return
	}
	if cur, ok := tx.Store.tasks[id]; ok {
		tx.tasks[id] = &cur
		return
	}
	tx.tasks[id] = nil
}

func (tx *txRepo) rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	for id, prev := range tx.lists {
		if prev == nil {
			delete(tx.Store.lists, id)
			continue
		}
		tx.Store.lists[id] = *prev
	}
	for id, prev := range tx.tasks {
		if prev == nil {
			delete(tx.Store.tasks, id)
			continue
		}
		tx.Store.tasks[id] = *prev
	}
}

func changedSince(updatedAt time.Time, deletedAt *time.Time, since *time.Time) bool {
	if since == nil {
		return true
	}
	if updatedAt.After(*since) {
		return true
	}
	return deletedAt != nil && deletedAt.After(*since)
}

func lessByUpdate(ai time.Time, aid string, bi time.Time, bid string) bool {
	if !ai.Equal(bi) {
		return ai.Before(bi)
	}
	return aid < bid
}
