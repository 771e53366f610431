package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

func TestStore_ListCompareAndIncrement(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	l := &list.List{ID: "l1", UID: "U1", Name: "Home", Position: 1000, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.InsertList(ctx, l))
	assert.ErrorIs(t, s.InsertList(ctx, l), sync.ErrAlreadyExists)

	next := *l
	next.Name = "House"
	next.Revision = 1
	require.NoError(t, s.UpdateList(ctx, &next, 0))

	stale := *l
	stale.Name = "Stale"
	stale.Revision = 1
	assert.ErrorIs(t, s.UpdateList(ctx, &stale, 0), sync.ErrRevisionConflict)

	got, err := s.FindList(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "House", got.Name)
	assert.Equal(t, int64(1), got.Revision)

	_, err = s.FindList(ctx, "missing")
	assert.ErrorIs(t, err, sync.ErrNotFound)
}

func TestStore_ListTasksSince(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	deleted := t0.Add(3 * time.Minute)

	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "old", UID: "U1", UpdatedAt: t0.Add(-time.Minute)}))
	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "edited", UID: "U1", UpdatedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "tomb", UID: "U1", UpdatedAt: t0.Add(-2 * time.Minute), DeletedAt: &deleted}))
	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "other", UID: "U2", UpdatedAt: t0.Add(time.Minute)}))

	all, err := s.ListTasksSince(ctx, "U1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	since, err := s.ListTasksSince(ctx, "U1", &t0)
	require.NoError(t, err)
	ids := []string{}
	for _, row := range since {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []string{"edited", "tomb"}, ids)
}

func TestStore_TombstoneTasksByList(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "a", UID: "U1", ListID: "L", Revision: 2, UpdatedAt: t0}))
	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "b", UID: "U1", ListID: "M", UpdatedAt: t0}))
	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "c", UID: "U2", ListID: "L", UpdatedAt: t0}))

	deletedAt := t0.Add(time.Hour)
	n, err := s.TombstoneTasksByList(ctx, "U1", "L", deletedAt, deletedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a, _ := s.FindTask(ctx, "a")
	require.NotNil(t, a.DeletedAt)
	assert.True(t, a.DeletedAt.Equal(deletedAt))
	assert.Equal(t, int64(2), a.Revision)

	b, _ := s.FindTask(ctx, "b")
	assert.Nil(t, b.DeletedAt)
	c, _ := s.FindTask(ctx, "c")
	assert.Nil(t, c.DeletedAt)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, repo sync.Repository) error {
		require.NoError(t, repo.InsertList(ctx, &list.List{ID: "l1", UID: "U1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.FindList(ctx, "l1")
	assert.ErrorIs(t, err, sync.ErrNotFound)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, repo sync.Repository) error {
		return repo.InsertList(ctx, &list.List{ID: "l2", UID: "U1"})
	}))
	_, err = s.FindList(ctx, "l2")
	assert.NoError(t, err)
}

func TestStore_RollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	boom := errors.New("ownership conflict")

	require.NoError(t, s.InsertList(ctx, &list.List{ID: "l1", UID: "U1", Name: "Work", UpdatedAt: t0}))
	require.NoError(t, s.InsertTask(ctx, &task.Task{ID: "a", UID: "U1", ListID: "l1", UpdatedAt: t0}))

	err := s.WithinTx(ctx, func(ctx context.Context, repo sync.Repository) error {
		renamed := &list.List{ID: "l1", UID: "U1", Name: "Job", Revision: 1, UpdatedAt: t0}
		require.NoError(t, repo.UpdateList(ctx, renamed, 0))
		_, err := repo.TombstoneTasksByList(ctx, "U1", "l1", t0, t0)
		require.NoError(t, err)

		// запись другого запроса, пока транзакция открыта
		done := make(chan error)
		go func() {
			done <- s.InsertTask(context.Background(), &task.Task{ID: "t1", UID: "U1", ListID: "inbox-U1", UpdatedAt: t0})
		}()
		require.NoError(t, <-done)

		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.FindTask(ctx, "t1")
	require.NoError(t, err, "a write made outside the transaction must survive its rollback")
	assert.Equal(t, "inbox-U1", got.ListID)

	l, err := s.FindList(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Work", l.Name)
	assert.Equal(t, int64(0), l.Revision)

	a, err := s.FindTask(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, a.DeletedAt)
}
