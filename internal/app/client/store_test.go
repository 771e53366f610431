package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 123456000, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	s := NewStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, RunMigrations(context.Background(), s.db))
}

func TestReplica_PutAndGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deleted := t0.Add(time.Hour)
	in := list.List{ID: "l1", UID: "U1", Name: "Work", Position: 2000, DeletedAt: &deleted, Revision: 3, CreatedAt: t0, UpdatedAt: deleted}
	require.NoError(t, s.Replica.PutList(ctx, &in))

	got, err := s.Replica.GetList(ctx, "U1", "l1")
	require.NoError(t, err)
	if diff := cmp.Diff(in, *got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Replica.GetList(ctx, "U2", "l1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplica_PutOverwritesByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Replica.PutList(ctx, &list.List{ID: "l1", UID: "U1", Name: "A", Position: 1000, CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, s.Replica.PutList(ctx, &list.List{ID: "l1", UID: "U1", Name: "B", Position: 1000, Revision: 1, CreatedAt: t0, UpdatedAt: t0}))

	lists, err := s.Replica.Lists(ctx, "U1", true)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "B", lists[0].Name)
	assert.Equal(t, int64(1), lists[0].Revision)
}

func TestReplica_BulkPutRejectsForeignRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := []list.List{
		{ID: "a", UID: "U1", Name: "A", Position: 1000, CreatedAt: t0, UpdatedAt: t0},
		{ID: "b", UID: "U2", Name: "B", Position: 2000, CreatedAt: t0, UpdatedAt: t0},
	}
	err := s.Replica.BulkPutLists(ctx, "U1", rows)
	assert.ErrorIs(t, err, ErrForeignRow)

	lists, err := s.Replica.Lists(ctx, "U1", true)
	require.NoError(t, err)
	assert.Empty(t, lists)
}

func TestReplica_TaskFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deleted := t0
	rows := []task.Task{
		{ID: "t1", UID: "U1", ListID: "work", Title: "a", Status: task.StatusActive, Position: 3000, CreatedAt: t0, UpdatedAt: t0},
		{ID: "t2", UID: "U1", ListID: "work", Title: "b", Status: task.StatusDone, Position: 2000, DoneAt: &t0, CreatedAt: t0, UpdatedAt: t0},
		{ID: "t3", UID: "U1", ListID: "home", Title: "c", Status: task.StatusActive, Position: 1000, CreatedAt: t0, UpdatedAt: t0},
		{ID: "t4", UID: "U1", ListID: "work", Title: "d", Status: task.StatusActive, Position: 500, DeletedAt: &deleted, CreatedAt: t0, UpdatedAt: t0},
	}
	require.NoError(t, s.Replica.BulkPutTasks(ctx, "U1", rows))
	require.NoError(t, s.Replica.PutTask(ctx, &task.Task{ID: "x", UID: "U2", ListID: "work", Title: "other", Status: task.StatusActive, Position: 9000, CreatedAt: t0, UpdatedAt: t0}))

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{name: "all live", filter: TaskFilter{}, want: []string{"t1", "t2", "t3"}},
		{name: "by list", filter: TaskFilter{ListID: "work"}, want: []string{"t1", "t2"}},
		{name: "by status", filter: TaskFilter{Status: task.StatusActive}, want: []string{"t1", "t3"}},
		{name: "with tombstones", filter: TaskFilter{ListID: "work", IncludeDeleted: true}, want: []string{"t1", "t2", "t4"}},
		{name: "list and status", filter: TaskFilter{ListID: "work", Status: task.StatusDone}, want: []string{"t2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Replica.Tasks(ctx, "U1", tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, tk := range got {
				ids = append(ids, tk.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestOutbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := &list.List{ID: "l1", UID: "U1", Name: "Work", Position: 1000, CreatedAt: t0, UpdatedAt: t0}
	e1, err := newListEntry(l, t0)
	require.NoError(t, err)
	require.NoError(t, s.Outbox.Enqueue(ctx, e1))

	tk := &task.Task{ID: "t1", UID: "U1", ListID: "l1", Title: "x", Status: task.StatusActive, Position: 1000, DeletedAt: &t0, CreatedAt: t0, UpdatedAt: t0}
	e2, err := newTaskEntry(tk, t0)
	require.NoError(t, err)
	require.NoError(t, s.Outbox.Enqueue(ctx, e2))

	other, err := newListEntry(&list.List{ID: "o", UID: "U2", Name: "O", Position: 1000}, t0)
	require.NoError(t, err)
	require.NoError(t, s.Outbox.Enqueue(ctx, other))

	entries, err := s.Outbox.Drain(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e1.ID, entries[0].ID)
	assert.Equal(t, sync.KindList, entries[0].Entity)
	assert.Equal(t, OpUpsert, entries[0].Op)
	assert.Equal(t, OpDelete, entries[1].Op)
	assert.Equal(t, "t1", entries[1].EntityID)

	var snap task.Task
	require.NoError(t, json.Unmarshal(entries[1].Payload, &snap))
	assert.Equal(t, "x", snap.Title)

	require.NoError(t, s.Outbox.MarkFailed(ctx, []int64{e2.ID}, "boom"))
	entries, err = s.Outbox.Drain(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, entries[1].RetryCount)
	assert.Equal(t, "boom", entries[1].LastError)

	require.NoError(t, s.Outbox.Ack(ctx, []int64{e1.ID}))
	n, err := s.Outbox.Pending(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, s.Outbox.Discard(ctx, "U1", other.ID), ErrNotFound)
	require.NoError(t, s.Outbox.Discard(ctx, "U1", e2.ID))

	n, err = s.Outbox.Pending(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.Outbox.Pending(ctx, "U2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMeta_Bookmark(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b, err := s.Meta.Bookmark(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, s.Meta.SetBookmark(ctx, "U1", t0))
	b, err = s.Meta.Bookmark(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, t0.Equal(*b))

	other, err := s.Meta.Bookmark(ctx, "U2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.Meta.ResetBookmark(ctx, "U1"))
	b, err = s.Meta.Bookmark(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.WithinTx(ctx, func(ctx context.Context, tx *Store) error {
		require.NoError(t, tx.Replica.PutList(ctx, &list.List{ID: "l1", UID: "U1", Name: "A", Position: 1000, CreatedAt: t0, UpdatedAt: t0}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.Replica.GetList(ctx, "U1", "l1")
	assert.ErrorIs(t, err, ErrNotFound)
}
