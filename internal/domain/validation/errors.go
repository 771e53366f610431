// Package validation содержит ошибки валидации полей сущностей.
package validation

import (
	"errors"
	"strings"
)

// FieldError описывает одно нарушенное правило.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Errors накапливает ошибки полей в порядке проверки.
type Errors []FieldError

// Add добавляет ошибку поля.
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Err возвращает nil, если ошибок нет.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Details возвращает ошибки в виде строк для ответа API.
func (e Errors) Details() []string {
	out := make([]string, 0, len(e))
	for _, fe := range e {
		out = append(out, fe.String())
	}
	return out
}

// As извлекает Errors из цепочки ошибок.
func As(err error) (Errors, bool) {
	var ve Errors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
