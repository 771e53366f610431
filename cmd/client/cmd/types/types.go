// Package types содержит общие для команд CLI ключи контекста.
package types

import (
	"context"
	"fmt"
	"time"

	"github.com/mammuth/gravity-tasks/cmd/client/cmd/output"
	"github.com/mammuth/gravity-tasks/internal/app/client"
)

type contextKey string

// ClientAppKey: ключ, под которым корневая команда кладет Session в контекст.
const ClientAppKey contextKey = "app"

// Session содержит то, что нужно каждой подкоманде
type Session struct {
	App      *client.App
	Out      *output.Printer
	Interval time.Duration
}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ClientAppKey, s)
}

// FromContext достает Session, положенную корневой командой.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(ClientAppKey).(*Session)
	if !ok || s == nil || s.App == nil {
		return nil, fmt.Errorf("приложение не инициализировано")
	}
	return s, nil
}
