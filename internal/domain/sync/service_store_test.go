package sync_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"pgregory.net/rapid"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/storage/memory"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newService(t testing.TB) (*sync.Service, *memory.Store, *clock) {
	t.Helper()
	store := memory.New()
	clk := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc := sync.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), &sync.ServiceConfig{
		Clock: clk.Now,
	})
	return svc, store, clk
}

func pos(v float64) *float64 { return &v }

func TestService_InboxIsCreatedOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	first, err := svc.CreateTask(ctx, "U1", sync.CreateTask{Title: "Buy milk", Position: pos(1000)})
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, err := svc.CreateTask(ctx, "U1", sync.CreateTask{Title: "Buy bread", Position: pos(2000)})
	require.NoError(t, err)

	assert.Equal(t, "inbox-U1", first.ListID)
	assert.Equal(t, "inbox-U1", second.ListID)
	assert.Equal(t, int64(0), first.Revision)
	assert.NotEqual(t, first.ID, second.ID)

	lists, err := svc.Lists(ctx, "U1", nil)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, list.InboxName, lists[0].Name)
	assert.Equal(t, 1000.0, lists[0].Position)
	assert.Equal(t, int64(0), lists[0].Revision)
}

func TestService_PartialBatchIsNotRolledBack(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.CreateList(ctx, "A", sync.CreateList{ID: "shared", Name: "A's", Position: pos(1000)})
	require.NoError(t, err)

	rows, err := svc.ApplyLists(ctx, "B", []sync.ListCommand{
		sync.CreateList{ID: "b1", Name: "First", Position: pos(1000)},
		sync.CreateList{ID: "shared", Name: "Stolen", Position: pos(2000)},
		sync.CreateList{ID: "b2", Name: "Never", Position: pos(3000)},
	})
	require.ErrorIs(t, err, sync.ErrOwnershipConflict)
	require.Len(t, rows, 1)

	bLists, err := svc.Lists(ctx, "B", nil)
	require.NoError(t, err)
	require.Len(t, bLists, 1)
	assert.Equal(t, "b1", bLists[0].ID)

	aLists, err := svc.Lists(ctx, "A", nil)
	require.NoError(t, err)
	require.Len(t, aLists, 1)
	assert.Equal(t, "A's", aLists[0].Name)
	assert.Equal(t, int64(0), aLists[0].Revision)
}

func TestService_ResubmissionBumpsRevision(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	batch := []sync.TaskCommand{
		sync.CreateTask{ID: "t1", ListID: "l1", Title: "Write report", Status: task.StatusDone, Position: pos(1000)},
		sync.CreateTask{ID: "t2", ListID: "l1", Title: "Send report", Position: pos(2000)},
	}

	first, err := svc.ApplyTasks(ctx, "U1", batch)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	second, err := svc.ApplyTasks(ctx, "U1", batch)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Title, second[i].Title)
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].Position, second[i].Position)
		assert.Equal(t, first[i].Revision+1, second[i].Revision)
		assert.Equal(t, first[i].DoneAt, second[i].DoneAt)
		assert.True(t, second[i].UpdatedAt.After(first[i].UpdatedAt))
	}
}

func TestService_SnapshotOfExistingRowKeepsAbsentFields(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	_, err := svc.ApplyTasks(ctx, "U1", []sync.TaskCommand{
		sync.CreateTask{ID: "t1", ListID: "l1", Title: "Write report", Description: "Q3",
			Status: task.StatusDone, Position: pos(1000)},
	})
	require.NoError(t, err)

	deletedAt := clk.Advance(time.Minute)
	_, err = svc.UpdateTask(ctx, "U1", sync.UpdateTask{ID: "t1", DeletedAt: &deletedAt})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	rows, err := svc.ApplyTasks(ctx, "U1", []sync.TaskCommand{
		sync.CreateTask{ID: "t1", Title: "Renamed", Position: pos(500), Fields: sync.TaskTitle | sync.TaskPosition},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 500.0, got.Position)
	assert.Equal(t, "Q3", got.Description)
	assert.Equal(t, "l1", got.ListID)
	assert.Equal(t, task.StatusDone, got.Status)
	assert.NotNil(t, got.DoneAt)
	require.NotNil(t, got.DeletedAt, "a partial snapshot must not bring a tombstone back")
	assert.True(t, deletedAt.Equal(*got.DeletedAt))
	assert.Equal(t, int64(2), got.Revision)

	lists, err := svc.ApplyLists(ctx, "U1", []sync.ListCommand{
		sync.CreateList{ID: "l2", Name: "Home", Position: pos(1000), DeletedAt: &deletedAt},
		sync.CreateList{ID: "l2", Name: "House", Position: pos(2000), Fields: sync.ListName | sync.ListPosition},
	})
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "House", lists[1].Name)
	assert.Equal(t, 2000.0, lists[1].Position)
	assert.NotNil(t, lists[1].DeletedAt)
}

func TestService_IncrementalRead(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	_, err := svc.CreateList(ctx, "U1", sync.CreateList{ID: "old", Name: "Old", Position: pos(1000)})
	require.NoError(t, err)
	bookmark := clk.Advance(time.Second)

	_, err = svc.CreateList(ctx, "U1", sync.CreateList{ID: "edge", Name: "Edge", Position: pos(2000)})
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = svc.CreateList(ctx, "U1", sync.CreateList{ID: "new", Name: "New", Position: pos(3000)})
	require.NoError(t, err)

	rows, err := svc.Lists(ctx, "U1", &bookmark)
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"new"}, ids, "rows stamped exactly at the bookmark are excluded")

	latest := clk.Advance(time.Second)
	rows, err = svc.Lists(ctx, "U1", &latest)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestService_ListDeleteCascades(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	for _, id := range []string{"work", "home"} {
		_, err := svc.CreateList(ctx, "U1", sync.CreateList{ID: id, Name: id, Position: pos(1000)})
		require.NoError(t, err)
	}
	_, err := svc.ApplyTasks(ctx, "U1", []sync.TaskCommand{
		sync.CreateTask{ID: "w1", ListID: "work", Title: "w1", Position: pos(1000)},
		sync.CreateTask{ID: "w2", ListID: "work", Title: "w2", Position: pos(2000)},
		sync.CreateTask{ID: "h1", ListID: "home", Title: "h1", Position: pos(1000)},
	})
	require.NoError(t, err)

	deletedAt := clk.Advance(time.Minute).Add(-10 * time.Second)
	deleted, err := svc.UpdateList(ctx, "U1", sync.UpdateList{ID: "work", DeletedAt: &deletedAt})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted.Revision)

	tasks, err := svc.Tasks(ctx, "U1", nil)
	require.NoError(t, err)
	for _, tk := range tasks {
		if tk.ListID == "work" {
			require.NotNil(t, tk.DeletedAt, tk.ID)
			assert.True(t, tk.DeletedAt.Equal(deletedAt), tk.ID)
			assert.Equal(t, int64(0), tk.Revision, tk.ID)
			assert.True(t, tk.UpdatedAt.Equal(clk.now), tk.ID)
		} else {
			assert.Nil(t, tk.DeletedAt, tk.ID)
		}
	}
}

func TestService_RevisionCountsAcceptedUpdates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc, _, clk := newService(t)
		n := rapid.IntRange(0, 25).Draw(rt, "updates")

		created, err := svc.CreateTask(ctx, "U1", sync.CreateTask{ID: "t", ListID: "l", Title: "t", Position: pos(1000)})
		require.NoError(rt, err)
		require.Equal(rt, int64(0), created.Revision)

		var last *task.Task = created
		for i := 0; i < n; i++ {
			clk.Advance(time.Millisecond)
			title := fmt.Sprintf("title %d", i)
			last, err = svc.UpdateTask(ctx, "U1", sync.UpdateTask{ID: "t", Title: &title})
			require.NoError(rt, err)
		}
		assert.Equal(rt, int64(n), last.Revision)
	})
}

func TestService_CascadeTouchesOnlyDeletedList(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc, _, clk := newService(t)
		listIDs := []string{"a", "b", "c"}

		for _, id := range listIDs {
			_, err := svc.CreateList(ctx, "U1", sync.CreateList{ID: id, Name: id, Position: pos(1000)})
			require.NoError(rt, err)
		}
		// задача чужого пользователя в списке с тем же id не должна затрагиваться
		_, err := svc.CreateTask(ctx, "U2", sync.CreateTask{ID: "foreign", ListID: "a", Title: "x", Position: pos(1)})
		require.NoError(rt, err)

		count := rapid.IntRange(0, 30).Draw(rt, "tasks")
		owner := make(map[string]string, count)
		cmds := make([]sync.TaskCommand, 0, count)
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("t%d", i)
			listID := rapid.SampledFrom(listIDs).Draw(rt, "list")
			owner[id] = listID
			cmds = append(cmds, sync.CreateTask{ID: id, ListID: listID, Title: id, Position: pos(float64(i))})
		}
		_, err = svc.ApplyTasks(ctx, "U1", cmds)
		require.NoError(rt, err)

		target := rapid.SampledFrom(listIDs).Draw(rt, "target")
		deletedAt := clk.Advance(time.Hour)
		_, err = svc.ApplyLists(ctx, "U1", []sync.ListCommand{sync.UpdateList{ID: target, DeletedAt: &deletedAt}})
		require.NoError(rt, err)

		tasks, err := svc.Tasks(ctx, "U1", nil)
		require.NoError(rt, err)
		require.Len(rt, tasks, count)
		for _, tk := range tasks {
			if owner[tk.ID] == target {
				require.NotNil(rt, tk.DeletedAt)
				assert.True(rt, tk.DeletedAt.Equal(deletedAt))
			} else {
				assert.Nil(rt, tk.DeletedAt)
			}
		}

		foreign, err := svc.Tasks(ctx, "U2", nil)
		require.NoError(rt, err)
		require.Len(rt, foreign, 1)
		assert.Nil(rt, foreign[0].DeletedAt)
	})
}

func TestService_IncrementalReadMatchesPredicate(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc, _, clk := newService(t)
		start := clk.now

		count := rapid.IntRange(1, 20).Draw(rt, "lists")
		for i := 0; i < count; i++ {
			clk.Advance(time.Duration(rapid.IntRange(1, 5).Draw(rt, "step")) * time.Second)
			_, err := svc.CreateList(ctx, "U1", sync.CreateList{ID: fmt.Sprintf("l%d", i), Name: "n", Position: pos(1)})
			require.NoError(rt, err)
		}

		offset := rapid.IntRange(0, int(clk.now.Sub(start)/time.Second)).Draw(rt, "since")
		since := start.Add(time.Duration(offset) * time.Second)

		all, err := svc.Lists(ctx, "U1", nil)
		require.NoError(rt, err)
		got, err := svc.Lists(ctx, "U1", &since)
		require.NoError(rt, err)

		want := 0
		for _, l := range all {
			if l.UpdatedAt.After(since) || (l.DeletedAt != nil && l.DeletedAt.After(since)) {
				want++
			}
		}
		assert.Len(rt, got, want)
	})
}
