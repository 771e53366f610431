package sync

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
	"github.com/mammuth/gravity-tasks/internal/domain/validation"
)

// MockRepository is a mock implementation of the Repository interface for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindList(ctx context.Context, id string) (*list.List, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*list.List), args.Error(1)
}

func (m *MockRepository) InsertList(ctx context.Context, l *list.List) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *MockRepository) UpdateList(ctx context.Context, l *list.List, expectedRevision int64) error {
	args := m.Called(ctx, l, expectedRevision)
	return args.Error(0)
}

func (m *MockRepository) ListListsSince(ctx context.Context, uid string, since *time.Time) ([]list.List, error) {
	args := m.Called(ctx, uid, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]list.List), args.Error(1)
}

func (m *MockRepository) FindTask(ctx context.Context, id string) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockRepository) InsertTask(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRepository) UpdateTask(ctx context.Context, t *task.Task, expectedRevision int64) error {
	args := m.Called(ctx, t, expectedRevision)
	return args.Error(0)
}

func (m *MockRepository) ListTasksSince(ctx context.Context, uid string, since *time.Time) ([]task.Task, error) {
	args := m.Called(ctx, uid, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]task.Task), args.Error(1)
}

func (m *MockRepository) TombstoneTasksByList(ctx context.Context, uid, listID string, deletedAt, now time.Time) (int64, error) {
	args := m.Called(ctx, uid, listID, deletedAt, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return fn(ctx, m)
}

type recordingNotifier struct {
	calls []Kind
}

func (n *recordingNotifier) Notify(_ string, kind Kind) {
	n.calls = append(n.calls, kind)
}

var testNow = time.Date(2026, 5, 4, 12, 30, 0, 123456789, time.UTC)

func newTestService(repo Repository, cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	cfg.Clock = func() time.Time { return testNow }
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func ptr[T any](v T) *T { return &v }

func TestService_ApplyListsCreatesAtRevisionZero(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)

	repo.On("FindList", mock.Anything, "l1").Return(nil, ErrNotFound)
	repo.On("InsertList", mock.Anything, mock.AnythingOfType("*list.List")).Return(nil)

	rows, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		CreateList{ID: "l1", Name: " Home ", Position: ptr(2000.0)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "l1", rows[0].ID)
	assert.Equal(t, "U1", rows[0].UID)
	assert.Equal(t, "Home", rows[0].Name)
	assert.Equal(t, int64(0), rows[0].Revision)
	assert.Equal(t, testNow.Truncate(time.Microsecond), rows[0].UpdatedAt)
	repo.AssertExpectations(t)
}

func TestService_ApplyListsIncrementsRevision(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)

	existing := &list.List{ID: "l1", UID: "U1", Name: "Old", Position: 1000, Revision: 3}
	repo.On("FindList", mock.Anything, "l1").Return(existing, nil)
	repo.On("UpdateList", mock.Anything, mock.AnythingOfType("*list.List"), int64(3)).Return(nil)

	rows, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		UpdateList{ID: "l1", Name: ptr("New")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].Revision)
	assert.Equal(t, "New", rows[0].Name)
	assert.Equal(t, 1000.0, rows[0].Position)
	assert.Equal(t, "Old", existing.Name, "stored row must not be mutated in place")
}

func TestService_ApplyListsRetriesOnRevisionConflict(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)

	repo.On("FindList", mock.Anything, "l1").
		Return(&list.List{ID: "l1", UID: "U1", Name: "A", Revision: 3}, nil).Once()
	repo.On("FindList", mock.Anything, "l1").
		Return(&list.List{ID: "l1", UID: "U1", Name: "B", Revision: 4}, nil).Once()
	repo.On("UpdateList", mock.Anything, mock.Anything, int64(3)).Return(ErrRevisionConflict).Once()
	repo.On("UpdateList", mock.Anything, mock.Anything, int64(4)).Return(nil).Once()

	rows, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		UpdateList{ID: "l1", Position: ptr(5.0)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rows[0].Revision)
	assert.Equal(t, "B", rows[0].Name)
	repo.AssertExpectations(t)
}

func TestService_ApplyListsGivesUpAfterMaxRetries(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, &ServiceConfig{MaxApplyRetries: 2})

	repo.On("FindList", mock.Anything, "l1").Return(&list.List{ID: "l1", UID: "U1", Revision: 1}, nil)
	repo.On("UpdateList", mock.Anything, mock.Anything, int64(1)).Return(ErrRevisionConflict)

	_, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		UpdateList{ID: "l1", Position: ptr(5.0)},
	})
	assert.ErrorIs(t, err, ErrRevisionConflict)
	repo.AssertNumberOfCalls(t, "UpdateList", 3)
}

func TestService_ApplyListsOwnershipConflict(t *testing.T) {
	repo := new(MockRepository)
	notifier := &recordingNotifier{}
	service := newTestService(repo, &ServiceConfig{Notifier: notifier})

	repo.On("FindList", mock.Anything, "taken").Return(&list.List{ID: "taken", UID: "A", Name: "Mine"}, nil)

	rows, err := service.ApplyLists(context.Background(), "B", []ListCommand{
		CreateList{ID: "taken", Name: "Theirs", Position: ptr(1.0)},
	})
	require.Error(t, err)
	assert.Empty(t, rows)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 0, batchErr.Index)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "list_id_conflict", conflict.Code())
	assert.ErrorIs(t, err, ErrOwnershipConflict)

	repo.AssertNotCalled(t, "UpdateList", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "InsertList", mock.Anything, mock.Anything)
	assert.Empty(t, notifier.calls)
}

func TestService_ApplyListsAbortsOnValidationError(t *testing.T) {
	repo := new(MockRepository)
	notifier := &recordingNotifier{}
	service := newTestService(repo, &ServiceConfig{Notifier: notifier})

	repo.On("FindList", mock.Anything, mock.Anything).Return(nil, ErrNotFound)
	repo.On("InsertList", mock.Anything, mock.Anything).Return(nil)

	rows, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		CreateList{ID: "a", Name: "A", Position: ptr(1.0)},
		CreateList{ID: "b", Name: "   ", Position: ptr(2.0)},
		CreateList{ID: "c", Name: "C", Position: ptr(3.0)},
	})
	require.Error(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)

	verrs, ok := validation.As(err)
	require.True(t, ok)
	assert.Equal(t, "name", verrs[0].Field)

	repo.AssertNumberOfCalls(t, "InsertList", 1)
	assert.Equal(t, []Kind{KindList}, notifier.calls)
}

func TestService_ApplyListsCascadesDelete(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)
	deletedAt := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	repo.On("FindList", mock.Anything, "l1").Return(&list.List{ID: "l1", UID: "U1", Name: "Work"}, nil)
	repo.On("UpdateList", mock.Anything, mock.Anything, int64(0)).Return(nil)
	repo.On("TombstoneTasksByList", mock.Anything, "U1", "l1", deletedAt, testNow.Truncate(time.Microsecond)).
		Return(int64(2), nil)

	rows, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		UpdateList{ID: "l1", DeletedAt: &deletedAt},
	})
	require.NoError(t, err)
	require.NotNil(t, rows[0].DeletedAt)
	assert.True(t, rows[0].DeletedAt.Equal(deletedAt))
	repo.AssertExpectations(t)
}

func TestService_ApplyBatchLimits(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, &ServiceConfig{MaxBatchSize: 1})

	tests := []struct {
		name    string
		uid     string
		cmds    []ListCommand
		wantErr error
	}{
		{
			name:    "missing uid",
			uid:     "",
			cmds:    nil,
			wantErr: ErrUIDRequired,
		},
		{
			name: "too many entries",
			uid:  "U1",
			cmds: []ListCommand{
				CreateList{Name: "a", Position: ptr(1.0)},
				CreateList{Name: "b", Position: ptr(2.0)},
			},
			wantErr: ErrBatchTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := service.ApplyLists(context.Background(), tt.uid, tt.cmds)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, rows)
		})
	}
	repo.AssertNotCalled(t, "FindList", mock.Anything, mock.Anything)
}

func TestService_ApplyListsAssignsMissingID(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, &ServiceConfig{NewID: func() string { return "generated" }})

	repo.On("FindList", mock.Anything, "generated").Return(nil, ErrNotFound)
	repo.On("InsertList", mock.Anything, mock.Anything).Return(nil)

	rows, err := service.ApplyLists(context.Background(), "U1", []ListCommand{
		CreateList{Name: "Fresh", Position: ptr(1.0)},
	})
	require.NoError(t, err)
	assert.Equal(t, "generated", rows[0].ID)
}

func TestService_ApplyTasksDefaultsToInbox(t *testing.T) {
	repo := new(MockRepository)
	notifier := &recordingNotifier{}
	service := newTestService(repo, &ServiceConfig{Notifier: notifier})

	repo.On("FindTask", mock.Anything, "t1").Return(nil, ErrNotFound)
	repo.On("FindList", mock.Anything, "inbox-U1").Return(nil, ErrNotFound)
	repo.On("InsertList", mock.Anything, mock.MatchedBy(func(l *list.List) bool {
		return l.ID == "inbox-U1" && l.Name == "Inbox" && l.Position == 1000 && l.Revision == 0
	})).Return(nil)
	repo.On("InsertTask", mock.Anything, mock.Anything).Return(nil)

	rows, err := service.ApplyTasks(context.Background(), "U1", []TaskCommand{
		CreateTask{ID: "t1", Title: "Buy milk", Position: ptr(1000.0)},
	})
	require.NoError(t, err)
	assert.Equal(t, "inbox-U1", rows[0].ListID)
	assert.Equal(t, task.StatusActive, rows[0].Status)
	assert.ElementsMatch(t, []Kind{KindTask, KindList}, notifier.calls)
	repo.AssertExpectations(t)
}

func TestService_ApplyTasksForeignInbox(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)

	repo.On("FindTask", mock.Anything, "t1").Return(nil, ErrNotFound)
	repo.On("FindList", mock.Anything, "inbox-U1").Return(&list.List{ID: "inbox-U1", UID: "intruder"}, nil)

	_, err := service.ApplyTasks(context.Background(), "U1", []TaskCommand{
		CreateTask{ID: "t1", Title: "Buy milk", Position: ptr(1000.0)},
	})
	assert.ErrorIs(t, err, ErrOwnershipConflict)
	repo.AssertNotCalled(t, "InsertTask", mock.Anything, mock.Anything)
}

func TestService_UpdateTaskForeignIsNotFound(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)

	repo.On("FindTask", mock.Anything, "t1").Return(&task.Task{ID: "t1", UID: "A", ListID: "l"}, nil)
	repo.On("FindTask", mock.Anything, "missing").Return(nil, ErrNotFound)

	_, err := service.UpdateTask(context.Background(), "B", UpdateTask{ID: "t1", Title: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.UpdateTask(context.Background(), "B", UpdateTask{ID: "missing", Title: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateTaskStatusStamps(t *testing.T) {
	doneBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		existing     task.Task
		cmd          UpdateTask
		wantDoneAt   *time.Time
		wantArchived bool
	}{
		{
			name:       "mark done stamps now",
			existing:   task.Task{ID: "t", UID: "U1", ListID: "l", Status: task.StatusActive},
			cmd:        UpdateTask{ID: "t", Status: ptr(task.StatusDone)},
			wantDoneAt: ptr(testNow.Truncate(time.Microsecond)),
		},
		{
			name:       "unchanged status keeps stamp",
			existing:   task.Task{ID: "t", UID: "U1", ListID: "l", Status: task.StatusDone, DoneAt: &doneBefore},
			cmd:        UpdateTask{ID: "t", Title: ptr("renamed")},
			wantDoneAt: &doneBefore,
		},
		{
			name:       "reactivation clears stamp",
			existing:   task.Task{ID: "t", UID: "U1", ListID: "l", Status: task.StatusDone, DoneAt: &doneBefore},
			cmd:        UpdateTask{ID: "t", Status: ptr(task.StatusActive)},
			wantDoneAt: nil,
		},
		{
			name:         "archive",
			existing:     task.Task{ID: "t", UID: "U1", ListID: "l", Status: task.StatusActive},
			cmd:          UpdateTask{ID: "t", Status: ptr(task.StatusArchived)},
			wantArchived: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			service := newTestService(repo, nil)
			existing := tt.existing

			repo.On("FindTask", mock.Anything, "t").Return(&existing, nil)
			repo.On("UpdateTask", mock.Anything, mock.Anything, int64(0)).Return(nil)

			got, err := service.UpdateTask(context.Background(), "U1", tt.cmd)
			require.NoError(t, err)
			if tt.wantDoneAt == nil {
				assert.Nil(t, got.DoneAt)
			} else {
				require.NotNil(t, got.DoneAt)
				assert.True(t, tt.wantDoneAt.Equal(*got.DoneAt))
			}
			assert.Equal(t, tt.wantArchived, got.ArchivedAt != nil)
			assert.Equal(t, int64(1), got.Revision)
		})
	}
}

func TestService_ReadsNeverReturnNil(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)

	repo.On("ListListsSince", mock.Anything, "U1", (*time.Time)(nil)).Return(nil, nil)
	repo.On("ListTasksSince", mock.Anything, "U1", (*time.Time)(nil)).Return(nil, nil)

	lists, err := service.Lists(context.Background(), "U1", nil)
	require.NoError(t, err)
	assert.NotNil(t, lists)

	tasks, err := service.Tasks(context.Background(), "U1", nil)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
}

func TestService_ReadErrorsAreWrapped(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, nil)
	boom := errors.New("connection reset")

	repo.On("ListTasksSince", mock.Anything, "U1", mock.Anything).Return(nil, boom)

	_, err := service.Tasks(context.Background(), "U1", nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to read tasks")
}
