// Package synctest содержит testify-мок сервиса согласования для тестов HTTP-слоя.
package synctest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

type MockService struct {
	mock.Mock
}

var _ sync.Servicer = (*MockService)(nil)

func (m *MockService) ApplyLists(ctx context.Context, uid string, cmds []sync.ListCommand) ([]list.List, error) {
	args := m.Called(ctx, uid, cmds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]list.List), args.Error(1)
}

func (m *MockService) ApplyTasks(ctx context.Context, uid string, cmds []sync.TaskCommand) ([]task.Task, error) {
	args := m.Called(ctx, uid, cmds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]task.Task), args.Error(1)
}

func (m *MockService) CreateList(ctx context.Context, uid string, cmd sync.CreateList) (*list.List, error) {
	args := m.Called(ctx, uid, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*list.List), args.Error(1)
}

func (m *MockService) UpdateList(ctx context.Context, uid string, cmd sync.UpdateList) (*list.List, error) {
	args := m.Called(ctx, uid, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*list.List), args.Error(1)
}

func (m *MockService) CreateTask(ctx context.Context, uid string, cmd sync.CreateTask) (*task.Task, error) {
	args := m.Called(ctx, uid, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockService) UpdateTask(ctx context.Context, uid string, cmd sync.UpdateTask) (*task.Task, error) {
	args := m.Called(ctx, uid, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockService) Lists(ctx context.Context, uid string, since *time.Time) ([]list.List, error) {
	args := m.Called(ctx, uid, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]list.List), args.Error(1)
}

func (m *MockService) Tasks(ctx context.Context, uid string, since *time.Time) ([]task.Task, error) {
	args := m.Called(ctx, uid, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]task.Task), args.Error(1)
}
