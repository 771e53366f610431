package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

// ErrSyncInProgress: для этого uid уже идет цикл, повторный запуск ничего не делает.
var ErrSyncInProgress = errors.New("синхронизация уже выполняется")

type State string

const (
	StateIdle    State = "idle"
	StatePushing State = "pushing"
	StatePulling State = "pulling"
	// StateFailed держится до следующего запуска цикла.
	StateFailed State = "failed"
)

// Status: наблюдаемое состояние синхронизации uid.
type Status struct {
	UID         string     `json:"uid"`
	State       State      `json:"state"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	Cycles      int        `json:"cycles"`
	Failures    int        `json:"failures"`
	Pushed      int        `json:"pushed"`
	Pulled      int        `json:"pulled"`
}

// Rejection: запись outbox, которая не была отправлена или была отклонена сервером.
type Rejection struct {
	EntryID  int64     `json:"entry_id"`
	Entity   sync.Kind `json:"entity"`
	EntityID string    `json:"entity_id"`
	Reason   string    `json:"reason"`
}

// SyncResult результат одного цикла
type SyncResult struct {
	PushedLists int           `json:"pushed_lists"`
	PushedTasks int           `json:"pushed_tasks"`
	PulledLists int           `json:"pulled_lists"`
	PulledTasks int           `json:"pulled_tasks"`
	Rejected    []Rejection   `json:"rejected,omitempty"`
	Bookmark    *time.Time    `json:"bookmark,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// EngineConfig конфигурация движка синхронизации
type EngineConfig struct {
	// BatchSize: максимум записей в одном пакетном вызове.
	BatchSize int
	Clock     func() time.Time
}

// Engine выгружает outbox и подтягивает изменения. Не более одного цикла на uid одновременно.
type Engine struct {
	api    RemoteAPI
	log    *slog.Logger
	config *EngineConfig

	mu      gosync.Mutex
	running map[string]bool
	status  map[string]*Status
}

func NewEngine(api RemoteAPI, log *slog.Logger, config *EngineConfig) *Engine {
	if config == nil {
		config = &EngineConfig{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Engine{
		api:     api,
		log:     log.With(slog.String("component", "sync_engine")),
		config:  config,
		running: make(map[string]bool),
		status:  make(map[string]*Status),
	}
}

// Sync выполняет цикл push, затем pull. Ошибка любого шага прерывает цикл;
// outbox и закладка остаются в состоянии последней успешной точки.
func (e *Engine) Sync(ctx context.Context, acct *Account) (*SyncResult, error) {
	if !e.acquire(acct.UID) {
		return nil, ErrSyncInProgress
	}
	defer e.release(acct.UID)

	res := &SyncResult{StartedAt: e.config.Clock()}

	e.setState(acct.UID, StatePushing)
	if err := e.push(ctx, acct, res); err != nil {
		return e.fail(acct.UID, res, fmt.Errorf("push: %w", err))
	}

	e.setState(acct.UID, StatePulling)
	if err := e.pull(ctx, acct, res); err != nil {
		return e.fail(acct.UID, res, fmt.Errorf("pull: %w", err))
	}

	res.Duration = e.config.Clock().Sub(res.StartedAt)
	e.succeed(acct.UID, res)
	return res, nil
}

// Status возвращает копию состояния uid
func (e *Engine) Status(uid string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.status[uid]; ok {
		return *st
	}
	return Status{UID: uid, State: StateIdle}
}

// StartAutoSync запускает цикл сразу и затем с интервалом, пока ctx не отменен.
// Возвращаемый канал закрывается после остановки.
func (e *Engine) StartAutoSync(ctx context.Context, acct *Account, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			e.TrySync(ctx, acct)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

// TrySync запускает цикл в фоне без возврата ошибки: она остается в Status.
func (e *Engine) TrySync(ctx context.Context, acct *Account) {
	_, err := e.Sync(ctx, acct)
	if err != nil && !errors.Is(err, ErrSyncInProgress) && ctx.Err() == nil {
		e.log.Debug("background sync failed", slog.String("uid", acct.UID), slog.String("error", err.Error()))
	}
}

func (e *Engine) push(ctx context.Context, acct *Account, res *SyncResult) error {
	entries, err := acct.Outbox.Drain(ctx, acct.UID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var (
		listEntries, taskEntries []Entry
		lists                    []list.List
		tasks                    []task.Task
		invalid                  = make(map[string][]int64)
	)
	reject := func(en Entry, err error) {
		res.Rejected = append(res.Rejected, Rejection{EntryID: en.ID, Entity: en.Entity, EntityID: en.EntityID, Reason: err.Error()})
		invalid[err.Error()] = append(invalid[err.Error()], en.ID)
	}

	for _, en := range entries {
		switch en.Entity {
		case sync.KindList:
			var l list.List
			if err := json.Unmarshal(en.Payload, &l); err != nil {
				reject(en, fmt.Errorf("broken snapshot: %w", err))
				continue
			}
			if err := validateList(&l); err != nil {
				reject(en, err)
				continue
			}
			listEntries = append(listEntries, en)
			lists = append(lists, l)
		case sync.KindTask:
			var t task.Task
			if err := json.Unmarshal(en.Payload, &t); err != nil {
				reject(en, fmt.Errorf("broken snapshot: %w", err))
				continue
			}
			if err := validateTask(&t); err != nil {
				reject(en, err)
				continue
			}
			taskEntries = append(taskEntries, en)
			tasks = append(tasks, t)
		default:
			reject(en, fmt.Errorf("unknown entity %q", en.Entity))
		}
	}

	for msg, ids := range invalid {
		if err := acct.Outbox.MarkFailed(ctx, ids, msg); err != nil {
			return err
		}
	}
	if len(res.Rejected) > 0 {
		e.log.Warn("outbox entries rejected locally", slog.String("uid", acct.UID), slog.Int("count", len(res.Rejected)))
	}

	// Списки первыми: задачи пакета могут ссылаться на только что созданные списки.
	res.PushedLists, err = e.pushKind(ctx, acct, res, sync.KindList, listEntries, func(ctx context.Context, from, to int) error {
		_, err := e.api.ApplyLists(ctx, acct.UID, lists[from:to])
		return err
	})
	if err != nil {
		return err
	}

	res.PushedTasks, err = e.pushKind(ctx, acct, res, sync.KindTask, taskEntries, func(ctx context.Context, from, to int) error {
		_, err := e.api.ApplyTasks(ctx, acct.UID, tasks[from:to])
		return err
	})
	return err
}

// pushKind отправляет записи одного вида пакетами и подтверждает каждый пакет сразу после успеха.
func (e *Engine) pushKind(ctx context.Context, acct *Account, res *SyncResult, kind sync.Kind, entries []Entry,
	send func(ctx context.Context, from, to int) error,
) (int, error) {
	pushed := 0
	for from := 0; from < len(entries); from += e.config.BatchSize {
		to := min(from+e.config.BatchSize, len(entries))
		chunk := entries[from:to]

		if err := send(ctx, from, to); err != nil {
			applied, perr := e.handleRejectedBatch(ctx, acct, res, chunk, err)
			return pushed + applied, perr
		}
		if err := acct.Outbox.Ack(ctx, entryIDs(chunk)); err != nil {
			return pushed, err
		}
		pushed += len(chunk)
		e.log.Debug("batch pushed", slog.String("uid", acct.UID), slog.String("entity", string(kind)), slog.Int("count", len(chunk)))
	}
	return pushed, nil
}

// handleRejectedBatch разбирает отказ сервера. Записи до прервавшей пакет
// уже применены и подтверждаются; прервавшая помечается ошибкой.
// Сетевые сбои оставляют outbox нетронутым.
func (e *Engine) handleRejectedBatch(ctx context.Context, acct *Account, res *SyncResult, chunk []Entry, err error) (int, error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Index == nil || *apiErr.Index < 0 || *apiErr.Index >= len(chunk) {
		return 0, err
	}

	idx := *apiErr.Index
	if ackErr := acct.Outbox.Ack(ctx, entryIDs(chunk[:idx])); ackErr != nil {
		return 0, errors.Join(err, ackErr)
	}

	bad := chunk[idx]
	if markErr := acct.Outbox.MarkFailed(ctx, []int64{bad.ID}, apiErr.Error()); markErr != nil {
		return idx, errors.Join(err, markErr)
	}
	res.Rejected = append(res.Rejected, Rejection{EntryID: bad.ID, Entity: bad.Entity, EntityID: bad.EntityID, Reason: apiErr.Error()})

	if apiErr.IsOwnershipConflict() {
		e.log.Error("id is owned by another user",
			slog.String("uid", acct.UID),
			slog.String("entity", string(bad.Entity)),
			slog.String("id", bad.EntityID),
		)
		return idx, fmt.Errorf("%w: %s %s: %w", sync.ErrOwnershipConflict, bad.Entity, bad.EntityID, err)
	}
	return idx, err
}

func (e *Engine) pull(ctx context.Context, acct *Account, res *SyncResult) error {
	since, err := acct.Bookmarks.Bookmark(ctx, acct.UID)
	if err != nil {
		return err
	}

	var (
		lists []list.List
		tasks []task.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lists, err = e.api.Lists(gctx, acct.UID, since)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = e.api.Tasks(gctx, acct.UID, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := acct.Replica.BulkPutLists(ctx, acct.UID, lists); err != nil {
		return err
	}
	if err := acct.Replica.BulkPutTasks(ctx, acct.UID, tasks); err != nil {
		return err
	}
	res.PulledLists, res.PulledTasks = len(lists), len(tasks)

	bookmark := watermark(since, lists, tasks)
	if bookmark != nil && (since == nil || bookmark.After(*since)) {
		if err := acct.Bookmarks.SetBookmark(ctx, acct.UID, *bookmark); err != nil {
			return err
		}
	}
	res.Bookmark = bookmark
	return nil
}

// watermark: наибольший updated_at среди прочитанных строк. updated_at ставит сервер,
// а deleted_at приходит с часов клиента и в закладку не попадает.
func watermark(since *time.Time, lists []list.List, tasks []task.Task) *time.Time {
	var mark time.Time
	if since != nil {
		mark = *since
	}
	for i := range lists {
		if lists[i].UpdatedAt.After(mark) {
			mark = lists[i].UpdatedAt
		}
	}
	for i := range tasks {
		if tasks[i].UpdatedAt.After(mark) {
			mark = tasks[i].UpdatedAt
		}
	}
	if mark.IsZero() {
		return nil
	}
	return &mark
}

func (e *Engine) acquire(uid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[uid] {
		return false
	}
	e.running[uid] = true
	return true
}

func (e *Engine) release(uid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, uid)
}

func (e *Engine) statusLocked(uid string) *Status {
	st, ok := e.status[uid]
	if !ok {
		st = &Status{UID: uid, State: StateIdle}
		e.status[uid] = st
	}
	return st
}

func (e *Engine) setState(uid string, s State) {
	e.mu.Lock()
	e.statusLocked(uid).State = s
	e.mu.Unlock()
	e.log.Debug("sync state changed", slog.String("uid", uid), slog.String("state", string(s)))
}

func (e *Engine) fail(uid string, res *SyncResult, err error) (*SyncResult, error) {
	now := e.config.Clock()
	res.Duration = now.Sub(res.StartedAt)

	e.mu.Lock()
	st := e.statusLocked(uid)
	st.State = StateFailed
	st.LastError = err.Error()
	st.LastErrorAt = &now
	st.Cycles++
	st.Failures++
	st.Pushed += res.PushedLists + res.PushedTasks
	e.mu.Unlock()

	e.log.Warn("sync failed", slog.String("uid", uid), slog.String("error", err.Error()))
	return res, err
}

func (e *Engine) succeed(uid string, res *SyncResult) {
	now := e.config.Clock()

	e.mu.Lock()
	st := e.statusLocked(uid)
	st.State = StateIdle
	st.LastError = ""
	st.LastErrorAt = nil
	st.LastSyncAt = &now
	st.Cycles++
	st.Pushed += res.PushedLists + res.PushedTasks
	st.Pulled += res.PulledLists + res.PulledTasks
	e.mu.Unlock()

	e.log.Info("sync completed",
		slog.String("uid", uid),
		slog.Int("pushed", res.PushedLists+res.PushedTasks),
		slog.Int("pulled", res.PulledLists+res.PulledTasks),
		slog.Int("rejected", len(res.Rejected)),
		slog.Duration("duration", res.Duration),
	)
}

// validateList проверяет снимок теми же правилами, что и сервер.
func validateList(l *list.List) error {
	pos := l.Position
	return sync.CreateList{ID: l.ID, Name: l.Name, Position: &pos, DeletedAt: l.DeletedAt}.Validate()
}

func validateTask(t *task.Task) error {
	pos := t.Position
	return sync.CreateTask{
		ID:          t.ID,
		ListID:      t.ListID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Position:    &pos,
		DeletedAt:   t.DeletedAt,
	}.Validate()
}

func entryIDs(entries []Entry) []int64 {
	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	return ids
}
