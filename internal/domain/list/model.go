package list

import (
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/position"
)

const (
	// InboxName: имя списка по умолчанию.
	InboxName = "Inbox"
	// InboxPosition: позиция списка по умолчанию.
	InboxPosition = position.Stride
	inboxPrefix   = "inbox-"
)

type List struct {
	ID        string     `json:"id"`
	UID       string     `json:"uid"`
	Name      string     `json:"name"`
	Position  float64    `json:"position"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Revision  int64      `json:"revision"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsDeleted сообщает, является ли список надгробием.
func (l *List) IsDeleted() bool {
	return l.DeletedAt != nil
}

// InboxID возвращает детерминированный id списка по умолчанию пользователя.
func InboxID(uid string) string {
	return inboxPrefix + uid
}

// NewInbox создает список по умолчанию с нулевой ревизией.
func NewInbox(uid string, now time.Time) *List {
	return &List{
		ID:        InboxID(uid),
		UID:       uid,
		Name:      InboxName,
		Position:  InboxPosition,
		Revision:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
