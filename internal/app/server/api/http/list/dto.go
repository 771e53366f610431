package list

import (
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
)

// listPayload: список в теле запроса. Поля uid, revision, created_at и updated_at
// принимаются ради полных снимков клиента и игнорируются.
type listPayload struct {
	ID        string     `json:"id,omitempty" doc:"ID списка, назначается клиентом"`
	UID       string     `json:"uid,omitempty" doc:"Игнорируется, владелец берется из идентичности"`
	Name      *string    `json:"name,omitempty" doc:"Название списка"`
	Position  *float64   `json:"position,omitempty" doc:"Ключ сортировки"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" doc:"Метка мягкого удаления"`
	Revision  *int64     `json:"revision,omitempty" doc:"Игнорируется"`
	CreatedAt *time.Time `json:"created_at,omitempty" doc:"Игнорируется"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" doc:"Игнорируется"`
}

// command: запись с id и без name считается частичным изменением, иначе снимком.
// Снимок существующего списка меняет только присланные поля.
func (p listPayload) command() sync.ListCommand {
	if p.ID != "" && p.Name == nil {
		return p.update(p.ID)
	}
	return p.create()
}

func (p listPayload) create() sync.CreateList {
	c := sync.CreateList{ID: p.ID, Position: p.Position, DeletedAt: p.DeletedAt, Fields: p.fields()}
	if p.Name != nil {
		c.Name = *p.Name
	}
	return c
}

func (p listPayload) fields() sync.ListField {
	var f sync.ListField
	if p.Name != nil {
		f |= sync.ListName
	}
	if p.Position != nil {
		f |= sync.ListPosition
	}
	if p.DeletedAt != nil {
		f |= sync.ListDeletedAt
	}
	return f
}

func (p listPayload) update(id string) sync.UpdateList {
	return sync.UpdateList{ID: id, Name: p.Name, Position: p.Position, DeletedAt: p.DeletedAt}
}

type indexInput struct {
	Since string `query:"since" doc:"ISO-8601 метка: вернуть строки, измененные или удаленные позже нее"`
}

type indexOutput struct {
	Body []list.List
}

type batchInput struct {
	Body listBatchBody
}

type listBatchBody struct {
	Lists []listPayload `json:"lists" doc:"Записи в порядке применения"`
}

type batchOutput struct {
	Body []list.List
}

// listEnvelope: тело одиночных POST и PUT, {"list": {...}}
type listEnvelope struct {
	List listPayload `json:"list"`
}

type createInput struct {
	Body listEnvelope
}

type updateInput struct {
	ID   string `path:"id" doc:"ID списка"`
	Body listEnvelope
}

type rowOutput struct {
	Body *list.List
}
