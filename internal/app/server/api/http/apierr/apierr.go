// Package apierr переводит ошибки домена в HTTP-ответы вида {status:"Error", error:<code>}.
package apierr

import (
	"errors"
	"net/http"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/validation"
)

const (
	CodeUIDRequired      = "uid_required"
	CodeInvalidToken     = "invalid_token"
	CodeValidationFailed = "validation_failed"
	CodeNotFound         = "not_found"
	CodeRevisionConflict = "revision_conflict"
	CodeInvalidSince     = "invalid_since"
	CodeInternal         = "internal_error"
)

// Error: тело ошибки. Реализует huma.StatusError.
type Error struct {
	HTTPStatus int      `json:"-"`
	Status     string   `json:"status"`
	Code       string   `json:"error"`
	ID         string   `json:"id,omitempty"`
	Index      *int     `json:"index,omitempty"`
	Details    []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code
}

func (e *Error) GetStatus() int {
	return e.HTTPStatus
}

func New(status int, code string) *Error {
	return &Error{HTTPStatus: status, Status: "Error", Code: code}
}

// From подбирает HTTP-статус и код для ошибки сервиса.
func From(err error) *Error {
	var out *Error
	if errors.As(err, &out) {
		return out
	}

	var (
		conflict *sync.ConflictError
		verrs    validation.Errors
	)
	switch {
	case errors.As(err, &conflict):
		out = New(http.StatusConflict, conflict.Code())
		out.ID = conflict.ID
	case errors.As(err, &verrs):
		out = New(http.StatusUnprocessableEntity, CodeValidationFailed)
		out.Details = verrs.Details()
	case errors.Is(err, sync.ErrBatchTooLarge):
		out = New(http.StatusUnprocessableEntity, CodeValidationFailed)
		out.Details = []string{err.Error()}
	case errors.Is(err, sync.ErrNotFound):
		out = New(http.StatusNotFound, CodeNotFound)
	case errors.Is(err, sync.ErrRevisionConflict):
		out = New(http.StatusConflict, CodeRevisionConflict)
	case errors.Is(err, sync.ErrUIDRequired):
		out = New(http.StatusUnauthorized, CodeUIDRequired)
	default:
		out = New(http.StatusInternalServerError, CodeInternal)
	}

	var batchErr *sync.BatchError
	if errors.As(err, &batchErr) {
		idx := batchErr.Index
		out.Index = &idx
	}
	return out
}

// ParseSince разбирает курсор ?since=. Пустая строка означает полное чтение.
func ParseSince(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		e := New(http.StatusBadRequest, CodeInvalidSince)
		e.Details = []string{err.Error()}
		return nil, e
	}
	t = t.UTC()
	return &t, nil
}
