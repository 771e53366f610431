package sync

import (
	"math"
	"strings"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
	"github.com/mammuth/gravity-tasks/internal/domain/validation"
)

// Kind: тип сущности, к которой относится команда.
type Kind string

const (
	KindList Kind = "list"
	KindTask Kind = "task"
)

// Command: закрытое объединение команд CreateList, UpdateList, CreateTask, UpdateTask.
type Command interface {
	Kind() Kind
	EntityID() string
	Validate() error
	sealed()
}

// ListCommand: команда, применимая к списку. applyTo заполняет новую строку,
// mergeInto меняет существующую.
type ListCommand interface {
	Command
	applyTo(l *list.List)
	mergeInto(l *list.List)
}

// TaskCommand: команда, применимая к задаче.
type TaskCommand interface {
	Command
	applyTo(t *task.Task)
	mergeInto(t *task.Task)
}

// ListField отмечает поля списка, пришедшие в снимке.
type ListField uint8

const (
	ListName ListField = 1 << iota
	ListPosition
	ListDeletedAt
)

// TaskField отмечает поля задачи, пришедшие в снимке.
type TaskField uint16

const (
	TaskListID TaskField = 1 << iota
	TaskTitle
	TaskDescription
	TaskStatus
	TaskPosition
	TaskDoneAt
	TaskArchivedAt
	TaskDeletedAt
)

// CreateList: снимок списка. Новая строка получает все поля снимка; существующая
// строка того же пользователя меняет только поля из Fields (ноль означает все).
type CreateList struct {
	ID        string
	Name      string
	Position  *float64
	DeletedAt *time.Time
	Fields    ListField
}

func (c CreateList) has(f ListField) bool {
	return c.Fields == 0 || c.Fields&f != 0
}

func (CreateList) Kind() Kind         { return KindList }
func (c CreateList) EntityID() string { return c.ID }
func (CreateList) sealed()            {}

func (c CreateList) Validate() error {
	var errs validation.Errors
	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "is required")
	}
	checkPosition(&errs, c.Position, true)
	return errs.Err()
}

func (c CreateList) applyTo(l *list.List) {
	l.Name = strings.TrimSpace(c.Name)
	l.Position = *c.Position
	l.DeletedAt = c.DeletedAt
}

// mergeInto не снимает надгробие: отсутствующий deleted_at оставляет строку удаленной.
func (c CreateList) mergeInto(l *list.List) {
	if c.has(ListName) {
		l.Name = strings.TrimSpace(c.Name)
	}
	if c.has(ListPosition) && c.Position != nil {
		l.Position = *c.Position
	}
	if c.has(ListDeletedAt) && c.DeletedAt != nil {
		l.DeletedAt = c.DeletedAt
	}
}

// UpdateList: частичное изменение существующего списка.
type UpdateList struct {
	ID        string
	Name      *string
	Position  *float64
	DeletedAt *time.Time
}

func (UpdateList) Kind() Kind         { return KindList }
func (c UpdateList) EntityID() string { return c.ID }
func (UpdateList) sealed()            {}

func (c UpdateList) Validate() error {
	var errs validation.Errors
	if c.ID == "" {
		errs.Add("id", "is required")
	}
	if c.Name != nil && strings.TrimSpace(*c.Name) == "" {
		errs.Add("name", "must not be blank")
	}
	checkPosition(&errs, c.Position, false)
	return errs.Err()
}

func (c UpdateList) mergeInto(l *list.List) {
	c.applyTo(l)
}

func (c UpdateList) applyTo(l *list.List) {
	if c.Name != nil {
		l.Name = strings.TrimSpace(*c.Name)
	}
	if c.Position != nil {
		l.Position = *c.Position
	}
	if c.DeletedAt != nil {
		l.DeletedAt = c.DeletedAt
	}
}

// CreateTask: снимок задачи. Пустой ListID означает Inbox пользователя,
// пустой Status означает active. Для существующей задачи применяются только
// поля из Fields (ноль означает все).
type CreateTask struct {
	ID          string
	ListID      string
	Title       string
	Description string
	Status      task.Status
	Position    *float64
	DoneAt      *time.Time
	ArchivedAt  *time.Time
	DeletedAt   *time.Time
	Fields      TaskField
}

func (c CreateTask) has(f TaskField) bool {
	return c.Fields == 0 || c.Fields&f != 0
}

func (CreateTask) Kind() Kind         { return KindTask }
func (c CreateTask) EntityID() string { return c.ID }
func (CreateTask) sealed()            {}

func (c CreateTask) Validate() error {
	var errs validation.Errors
	if strings.TrimSpace(c.Title) == "" {
		errs.Add("title", "is required")
	}
	if c.Status != "" && !c.Status.Valid() {
		errs.Add("status", "must be one of active, done, archived")
	}
	checkPosition(&errs, c.Position, true)
	return errs.Err()
}

func (c CreateTask) applyTo(t *task.Task) {
	t.ListID = c.ListID
	t.Title = strings.TrimSpace(c.Title)
	t.Description = c.Description
	t.Status = c.Status
	if t.Status == "" {
		t.Status = task.StatusActive
	}
	t.Position = *c.Position
	t.DoneAt = c.DoneAt
	t.ArchivedAt = c.ArchivedAt
	t.DeletedAt = c.DeletedAt
}

func (c CreateTask) mergeInto(t *task.Task) {
	if c.has(TaskListID) {
		t.ListID = c.ListID
	}
	if c.has(TaskTitle) {
		t.Title = strings.TrimSpace(c.Title)
	}
	if c.has(TaskDescription) {
		t.Description = c.Description
	}
	if c.has(TaskStatus) && c.Status != "" {
		t.Status = c.Status
	}
	if c.has(TaskPosition) && c.Position != nil {
		t.Position = *c.Position
	}
	if c.has(TaskDoneAt) && c.DoneAt != nil {
		t.DoneAt = c.DoneAt
	}
	if c.has(TaskArchivedAt) && c.ArchivedAt != nil {
		t.ArchivedAt = c.ArchivedAt
	}
	if c.has(TaskDeletedAt) && c.DeletedAt != nil {
		t.DeletedAt = c.DeletedAt
	}
}

// UpdateTask: частичное изменение существующей задачи.
type UpdateTask struct {
	ID          string
	ListID      *string
	Title       *string
	Description *string
	Status      *task.Status
	Position    *float64
	DoneAt      *time.Time
	ArchivedAt  *time.Time
	DeletedAt   *time.Time
}

func (UpdateTask) Kind() Kind         { return KindTask }
func (c UpdateTask) EntityID() string { return c.ID }
func (UpdateTask) sealed()            {}

func (c UpdateTask) Validate() error {
	var errs validation.Errors
	if c.ID == "" {
		errs.Add("id", "is required")
	}
	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		errs.Add("title", "must not be blank")
	}
	if c.Status != nil && !c.Status.Valid() {
		errs.Add("status", "must be one of active, done, archived")
	}
	checkPosition(&errs, c.Position, false)
	return errs.Err()
}

func (c UpdateTask) mergeInto(t *task.Task) {
	c.applyTo(t)
}

func (c UpdateTask) applyTo(t *task.Task) {
	if c.ListID != nil {
		t.ListID = *c.ListID
	}
	if c.Title != nil {
		t.Title = strings.TrimSpace(*c.Title)
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.Position != nil {
		t.Position = *c.Position
	}
	if c.DoneAt != nil {
		t.DoneAt = c.DoneAt
	}
	if c.ArchivedAt != nil {
		t.ArchivedAt = c.ArchivedAt
	}
	if c.DeletedAt != nil {
		t.DeletedAt = c.DeletedAt
	}
}

func checkPosition(errs *validation.Errors, p *float64, required bool) {
	if p == nil {
		if required {
			errs.Add("position", "is required")
		}
		return
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) {
		errs.Add("position", "must be a finite number")
	}
}

// ListSnapshot строит CreateList из строки реплики.
func ListSnapshot(l list.List) CreateList {
	pos := l.Position
	return CreateList{ID: l.ID, Name: l.Name, Position: &pos, DeletedAt: l.DeletedAt}
}

// TaskSnapshot строит CreateTask из строки реплики.
func TaskSnapshot(t task.Task) CreateTask {
	pos := t.Position
	return CreateTask{
		ID:          t.ID,
		ListID:      t.ListID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Position:    &pos,
		DoneAt:      t.DoneAt,
		ArchivedAt:  t.ArchivedAt,
		DeletedAt:   t.DeletedAt,
	}
}
