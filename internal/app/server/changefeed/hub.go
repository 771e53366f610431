// Package changefeed уведомляет подключенных клиентов пользователя о принятых сервером изменениях.
package changefeed

import (
	"context"
	"net/http"
	gosync "sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/middleware/identity"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
)

const sendBuffer = 16

// Event: сообщение в сокете. Клиент в ответ запускает цикл синхронизации.
type Event struct {
	Entity sync.Kind `json:"entity"`
	At     time.Time `json:"at"`
}

type subscriber struct {
	uid  string
	send chan Event
}

type Hub struct {
	mu    gosync.RWMutex
	subs  map[string]map[*subscriber]struct{}
	log   *slog.Logger
	clock func() time.Time
}

var _ sync.Notifier = (*Hub)(nil)

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		subs:  make(map[string]map[*subscriber]struct{}),
		log:   log.With(slog.String("component", "changefeed")),
		clock: time.Now,
	}
}

// Notify рассылает событие всем сокетам uid. Медленный подписчик событие пропускает:
// следующий цикл синхронизации все равно заберет изменения.
func (h *Hub) Notify(uid string, kind sync.Kind) {
	ev := Event{Entity: kind, At: h.clock().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[uid] {
		select {
		case s.send <- ev:
		default:
			h.log.Debug("subscriber too slow, event dropped", slog.String("uid", uid))
		}
	}
}

// Subscribers возвращает число сокетов uid.
func (h *Hub) Subscribers(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[uid])
}

func (h *Hub) subscribe(uid string) *subscriber {
	s := &subscriber{uid: uid, send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[uid] == nil {
		h.subs[uid] = make(map[*subscriber]struct{})
	}
	h.subs[uid][s] = struct{}{}
	h.log.Info("client connected", slog.String("uid", uid), slog.Int("clients", len(h.subs[uid])))
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.uid], s)
	if len(h.subs[s.uid]) == 0 {
		delete(h.subs, s.uid)
	}
	h.log.Info("client disconnected", slog.String("uid", s.uid))
}

// ServeHTTP принимает websocket. uid должен быть уже положен в контекст identity-middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, ok := identity.GetUID(r.Context())
	if !ok {
		http.Error(w, "uid_required", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Error("ws accept", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s := h.subscribe(uid)
	defer h.unsubscribe(s)

	// клиент ничего не присылает; CloseRead отменит ctx при закрытии сокета
	ctx := conn.CloseRead(r.Context())
	h.writeLoop(ctx, conn, s)
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, s *subscriber) {
	for {
		select {
		case ev := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				h.log.Debug("ws write failed", slog.String("uid", s.uid), slog.String("error", err.Error()))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
