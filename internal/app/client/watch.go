package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/domain/sync"
)

// ChangeEvent: уведомление сервера о принятой записи uid.
type ChangeEvent struct {
	Entity sync.Kind `json:"entity"`
	At     time.Time `json:"at"`
}

// Watcher держит websocket /changes и переподключается с экспоненциальной задержкой.
type Watcher struct {
	url        string
	header     http.Header
	log        *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewWatcher(url string, header http.Header, log *slog.Logger) *Watcher {
	return &Watcher{
		url:        url,
		header:     header,
		log:        log.With(slog.String("component", "watcher")),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Watch вызывает onEvent на каждое событие и возвращается только после отмены ctx.
func (w *Watcher) Watch(ctx context.Context, onEvent func(ChangeEvent)) error {
	backoff := w.minBackoff
	for {
		connected, err := w.session(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = w.minBackoff
		}
		w.log.Debug("changes stream lost, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.maxBackoff)
	}
}

// session возвращает признак того, что соединение было установлено.
func (w *Watcher) session(ctx context.Context, onEvent func(ChangeEvent)) (bool, error) {
	conn, resp, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{HTTPHeader: w.header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, fmt.Errorf("changes stream rejected identity: %w", err)
		}
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	w.log.Debug("changes stream connected", slog.String("url", w.url))
	// Сразу после подключения догоняем то, что могли пропустить, пока сокета не было.
	onEvent(ChangeEvent{})

	for {
		var ev ChangeEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				return true, nil
			}
			return true, err
		}
		onEvent(ev)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
