package task

import "time"

type Task struct {
	ID          string     `json:"id"`
	UID         string     `json:"uid"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Position    float64    `json:"position"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	Revision    int64      `json:"revision"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsDeleted сообщает, является ли задача надгробием.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// SetStatus переводит задачу в статус и выставляет метки времени.
func (t *Task) SetStatus(s Status, now time.Time) {
	t.Status = s
	t.SyncStatusTimestamps(now)
}

// SyncStatusTimestamps приводит done_at и archived_at в соответствие со статусом:
// метка ставится при входе в статус (существующая сохраняется) и очищается в остальных случаях.
func (t *Task) SyncStatusTimestamps(now time.Time) {
	if t.Status == StatusDone {
		if t.DoneAt == nil {
			t.DoneAt = &now
		}
	} else {
		t.DoneAt = nil
	}

	if t.Status == StatusArchived {
		if t.ArchivedAt == nil {
			t.ArchivedAt = &now
		}
	} else {
		t.ArchivedAt = nil
	}
}
