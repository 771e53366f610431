package task

import (
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

// taskPayload: задача в теле запроса. Пустой list_id означает Inbox пользователя.
type taskPayload struct {
	ID          string     `json:"id,omitempty" doc:"ID задачи, назначается клиентом"`
	UID         string     `json:"uid,omitempty" doc:"Игнорируется, владелец берется из идентичности"`
	ListID      *string    `json:"list_id,omitempty" doc:"ID списка"`
	Title       *string    `json:"title,omitempty" doc:"Заголовок"`
	Description *string    `json:"description,omitempty" doc:"Описание"`
	Status      *string    `json:"status,omitempty" doc:"active, done или archived"`
	Position    *float64   `json:"position,omitempty" doc:"Ключ сортировки"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" doc:"Метка мягкого удаления"`
	Revision    *int64     `json:"revision,omitempty" doc:"Игнорируется"`
	CreatedAt   *time.Time `json:"created_at,omitempty" doc:"Игнорируется"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" doc:"Игнорируется"`
}

// command: запись с id и без title считается частичным изменением, иначе снимком.
// Снимок существующей задачи меняет только присланные поля.
func (p taskPayload) command() sync.TaskCommand {
	if p.ID != "" && p.Title == nil {
		return p.update(p.ID)
	}
	return p.create()
}

func (p taskPayload) create() sync.CreateTask {
	c := sync.CreateTask{
		ID:         p.ID,
		Position:   p.Position,
		DoneAt:     p.DoneAt,
		ArchivedAt: p.ArchivedAt,
		DeletedAt:  p.DeletedAt,
		Fields:     p.fields(),
	}
	if p.ListID != nil {
		c.ListID = *p.ListID
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Status != nil {
		c.Status = task.Status(*p.Status)
	}
	return c
}

func (p taskPayload) fields() sync.TaskField {
	var f sync.TaskField
	mark := func(present bool, bit sync.TaskField) {
		if present {
			f |= bit
		}
	}
	mark(p.ListID != nil, sync.TaskListID)
	mark(p.Title != nil, sync.TaskTitle)
	mark(p.Description != nil, sync.TaskDescription)
	mark(p.Status != nil, sync.TaskStatus)
	mark(p.Position != nil, sync.TaskPosition)
	mark(p.DoneAt != nil, sync.TaskDoneAt)
	mark(p.ArchivedAt != nil, sync.TaskArchivedAt)
	mark(p.DeletedAt != nil, sync.TaskDeletedAt)
	return f
}

func (p taskPayload) update(id string) sync.UpdateTask {
	c := sync.UpdateTask{
		ID:          id,
		ListID:      p.ListID,
		Title:       p.Title,
		Description: p.Description,
		Position:    p.Position,
		DoneAt:      p.DoneAt,
		ArchivedAt:  p.ArchivedAt,
		DeletedAt:   p.DeletedAt,
	}
	if p.Status != nil {
		s := task.Status(*p.Status)
		c.Status = &s
	}
	return c
}

type indexInput struct {
	Since string `query:"since" doc:"ISO-8601 метка: вернуть строки, измененные или удаленные позже нее"`
}

type indexOutput struct {
	Body []task.Task
}

type batchInput struct {
	Body taskBatchBody
}

type taskBatchBody struct {
	Tasks []taskPayload `json:"tasks" doc:"Записи в порядке применения"`
}

type batchOutput struct {
	Body []task.Task
}

// taskEnvelope: тело одиночных POST и PUT, {"task": {...}}
type taskEnvelope struct {
	Task taskPayload `json:"task"`
}

type createInput struct {
	Body taskEnvelope
}

type updateInput struct {
	ID   string `path:"id" doc:"ID задачи"`
	Body taskEnvelope
}

type rowOutput struct {
	Body *task.Task
}
