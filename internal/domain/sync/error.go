package sync

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrRevisionConflict  = errors.New("revision changed concurrently")
	ErrOwnershipConflict = errors.New("id is owned by another user")
	ErrBatchTooLarge     = errors.New("batch exceeds the maximum size")
)

// ConflictError: id уже принадлежит другому uid. Такой id испорчен
// и не должен переиспользоваться клиентом.
type ConflictError struct {
	Kind Kind
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s id %q is owned by another user", e.Kind, e.ID)
}

// Code возвращает машинный код ошибки: list_id_conflict или task_id_conflict.
func (e *ConflictError) Code() string {
	return string(e.Kind) + "_id_conflict"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrOwnershipConflict
}

// BatchError прерывает пакет на записи Index. Записи до нее остаются примененными.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch entry %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ErrUIDRequired: вызов без идентификатора пользователя.
var ErrUIDRequired = errors.New("uid is required")
