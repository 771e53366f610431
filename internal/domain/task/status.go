package task

import "fmt"

type Status string

const (
	StatusActive   Status = "active"
	StatusDone     Status = "done"
	StatusArchived Status = "archived"
)

// Statuses перечисляет допустимые статусы.
var Statuses = []Status{StatusActive, StatusDone, StatusArchived}

// Valid проверяет, что статус входит в допустимый набор.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDone, StatusArchived:
		return true
	}
	return false
}

// ParseStatus разбирает статус из строки.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return st, nil
}
