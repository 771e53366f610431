package health

import (
	"context"
	"errors"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHandler_healthCheck(t *testing.T) {
	tests := []struct {
		name           string
		storage        Pinger
		expectedStatus string
		expectedStore  string
		wantErr        bool
	}{
		{
			name:           "memory storage",
			expectedStatus: "OK",
		},
		{
			name:           "storage reachable",
			storage:        pingerFunc(func(context.Context) error { return nil }),
			expectedStatus: "OK",
			expectedStore:  "OK",
		},
		{
			name:    "storage down",
			storage: pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			handler := NewHandler(slog.Default(), tt.storage, huma.Middlewares{})

			// Act
			output, err := handler.healthCheck(context.Background(), &Input{})

			// Assert
			if tt.wantErr {
				var se huma.StatusError
				assert.ErrorAs(t, err, &se)
				assert.Equal(t, 503, se.GetStatus())
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, output.Body.Status)
			assert.Equal(t, tt.expectedStore, output.Body.Storage)
		})
	}
}

func TestNewHandler(t *testing.T) {
	handler := NewHandler(slog.Default(), nil, huma.Middlewares{})

	assert.NotNil(t, handler)
	assert.NotNil(t, handler.log)
	assert.NotNil(t, handler.middleware)
}
