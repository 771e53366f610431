package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_SetStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name         string
		task         Task
		status       Status
		wantDone     *time.Time
		wantArchived *time.Time
	}{
		{
			name:     "active to done stamps done_at",
			task:     Task{Status: StatusActive},
			status:   StatusDone,
			wantDone: &now,
		},
		{
			name:     "done keeps existing done_at",
			task:     Task{Status: StatusDone, DoneAt: &earlier},
			status:   StatusDone,
			wantDone: &earlier,
		},
		{
			name:   "done to active clears done_at",
			task:   Task{Status: StatusDone, DoneAt: &earlier},
			status: StatusActive,
		},
		{
			name:         "done to archived swaps stamps",
			task:         Task{Status: StatusDone, DoneAt: &earlier},
			status:       StatusArchived,
			wantArchived: &now,
		},
		{
			name:   "archived to active clears archived_at",
			task:   Task{Status: StatusArchived, ArchivedAt: &earlier},
			status: StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.task
			task.SetStatus(tt.status, now)

			assert.Equal(t, tt.status, task.Status)
			assert.Equal(t, tt.wantDone, task.DoneAt)
			assert.Equal(t, tt.wantArchived, task.ArchivedAt)
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("pending")
	assert.Error(t, err)
	assert.False(t, Status("").Valid())
}
