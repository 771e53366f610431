package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/client/config"
	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/position"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
	"github.com/mammuth/gravity-tasks/internal/domain/validation"
)

var (
	ErrNotInitialized = errors.New("клиент не инициализирован, выполните: gravity init")
	ErrListDeleted    = errors.New("список удален")
	ErrNoServer       = errors.New("сервер не настроен")
)

// Options позволяют подменить часы и генератор id
type Options struct {
	Clock     func() time.Time
	NewID     func() string
	UID       string
	SyncBatch int
}

// App: локальное приложение: каждая мутация пишет строку реплики и запись outbox
// в одной транзакции и сразу видна в чтениях, независимо от состояния синхронизации.
type App struct {
	log     *slog.Logger
	store   *Store
	engine  *Engine
	api     *APIClient
	clock   func() time.Time
	newID   func() string
	uidFlag string

	mu  gosync.RWMutex
	uid string
}

// New открывает реплику из конфигурации и создает HTTP-клиент сервера
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	db, err := OpenDB(ctx, cfg.SQLiteDriver, cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации реплики: %w", err)
	}

	api := NewAPIClient(cfg, log)
	app := NewApp(NewStore(db), api, log, &Options{UID: cfg.UID})
	app.api = api
	return app, nil
}

// NewApp собирает приложение из готовых частей
func NewApp(store *Store, remote RemoteAPI, log *slog.Logger, opts *Options) *App {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &App{
		log:     log.With(slog.String("component", "app")),
		store:   store,
		engine:  NewEngine(remote, log, &EngineConfig{BatchSize: opts.SyncBatch, Clock: opts.Clock}),
		clock:   opts.Clock,
		newID:   opts.NewID,
		uidFlag: opts.UID,
	}
}

func (a *App) Close() error {
	return a.store.Close()
}

// Init закрепляет uid за этой репликой (генерирует новый, если пусто) и создает Inbox.
func (a *App) Init(ctx context.Context, uid string) (string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		var err error
		if uid, err = GenerateUID(); err != nil {
			return "", err
		}
	}

	if err := a.store.Meta.SetSessionUID(ctx, uid); err != nil {
		return "", err
	}
	a.mu.Lock()
	a.uid = uid
	a.mu.Unlock()

	if _, err := a.EnsureDefaultList(ctx); err != nil {
		return "", err
	}
	a.log.Info("replica initialized", slog.String("uid", uid))
	return uid, nil
}

// UID возвращает uid сессии: флаг/переменная окружения важнее сохраненного значения.
func (a *App) UID(ctx context.Context) (string, error) {
	if a.uidFlag != "" {
		return a.uidFlag, nil
	}

	a.mu.RLock()
	uid := a.uid
	a.mu.RUnlock()
	if uid != "" {
		return uid, nil
	}

	uid, err := a.store.Meta.SessionUID(ctx)
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", ErrNotInitialized
	}

	a.mu.Lock()
	a.uid = uid
	a.mu.Unlock()
	return uid, nil
}

// Account возвращает контекст синхронизации текущего uid
func (a *App) Account(ctx context.Context) (*Account, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	return NewAccount(uid, a.store), nil
}

// EnsureDefaultList находит или создает Inbox текущего uid.
func (a *App) EnsureDefaultList(ctx context.Context) (*list.List, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}

	inbox, err := a.store.Replica.GetList(ctx, uid, list.InboxID(uid))
	if err == nil {
		return inbox, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	inbox = list.NewInbox(uid, a.now())
	if err := a.saveList(ctx, inbox); err != nil {
		return nil, err
	}
	return inbox, nil
}

func (a *App) Lists(ctx context.Context, includeDeleted bool) ([]list.List, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	return a.store.Replica.Lists(ctx, uid, includeDeleted)
}

func (a *App) CreateList(ctx context.Context, name string) (*list.List, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := a.store.Replica.Lists(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	positions := make([]float64, len(existing))
	for i := range existing {
		positions[i] = existing[i].Position
	}

	now := a.now()
	l := &list.List{
		ID:        a.newID(),
		UID:       uid,
		Name:      strings.TrimSpace(name),
		Position:  position.Next(positions),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.saveList(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (a *App) RenameList(ctx context.Context, id, name string) (*list.List, error) {
	l, err := a.liveList(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Name = strings.TrimSpace(name)
	l.UpdatedAt = a.now()
	if err := a.saveList(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteList помечает список и все его задачи удаленными одной меткой времени
// и ставит в очередь снимки каждой строки.
func (a *App) DeleteList(ctx context.Context, id string) (*list.List, int, error) {
	l, err := a.liveList(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	now := a.now()
	l.DeletedAt = &now
	l.UpdatedAt = now

	var cascaded int
	err = a.store.WithinTx(ctx, func(ctx context.Context, tx *Store) error {
		if err := a.putList(ctx, tx, l); err != nil {
			return err
		}

		tasks, err := tx.Replica.Tasks(ctx, l.UID, TaskFilter{ListID: l.ID})
		if err != nil {
			return err
		}
		for i := range tasks {
			t := &tasks[i]
			t.DeletedAt = &now
			t.UpdatedAt = now
			if err := a.putTask(ctx, tx, t); err != nil {
				return err
			}
		}
		cascaded = len(tasks)

		active, err := tx.Meta.ActiveListID(ctx, l.UID)
		if err != nil {
			return err
		}
		if active == l.ID {
			return tx.Meta.Delete(ctx, activeListKeyPrefix+l.UID)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return l, cascaded, nil
}

func (a *App) SetActiveList(ctx context.Context, id string) (*list.List, error) {
	l, err := a.liveList(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.store.Meta.SetActiveListID(ctx, l.UID, l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

// ActiveList возвращает выбранный список, а если он не выбран или удален, то Inbox.
func (a *App) ActiveList(ctx context.Context) (*list.List, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}

	id, err := a.store.Meta.ActiveListID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if id != "" {
		l, err := a.store.Replica.GetList(ctx, uid, id)
		if err == nil && !l.IsDeleted() {
			return l, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return a.EnsureDefaultList(ctx)
}

func (a *App) Tasks(ctx context.Context, f TaskFilter) ([]task.Task, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	return a.store.Replica.Tasks(ctx, uid, f)
}

// AddTaskOptions: необязательные поля новой задачи
type AddTaskOptions struct {
	ListID      string
	Description string
}

// AddTask добавляет задачу в начало списка: в указанный, иначе в активный, иначе в Inbox.
func (a *App) AddTask(ctx context.Context, title string, opts AddTaskOptions) (*task.Task, error) {
	var (
		l   *list.List
		err error
	)
	if opts.ListID != "" {
		l, err = a.liveList(ctx, opts.ListID)
	} else {
		l, err = a.ActiveList(ctx)
	}
	if err != nil {
		return nil, err
	}

	pos, err := a.nextTaskPosition(ctx, l.UID, l.ID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	t := &task.Task{
		ID:          a.newID(),
		UID:         l.UID,
		ListID:      l.ID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(opts.Description),
		Status:      task.StatusActive,
		Position:    pos,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.saveTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskPatch: изменяемые поля задачи, nil означает "не менять"
type TaskPatch struct {
	Title       *string
	Description *string
}

func (a *App) EditTask(ctx context.Context, id string, p TaskPatch) (*task.Task, error) {
	return a.mutateTask(ctx, id, func(t *task.Task) error {
		if p.Title != nil {
			t.Title = strings.TrimSpace(*p.Title)
		}
		if p.Description != nil {
			t.Description = strings.TrimSpace(*p.Description)
		}
		return nil
	})
}

func (a *App) MarkDone(ctx context.Context, id string) (*task.Task, error) {
	return a.setStatus(ctx, id, task.StatusDone)
}

func (a *App) MarkActive(ctx context.Context, id string) (*task.Task, error) {
	return a.setStatus(ctx, id, task.StatusActive)
}

func (a *App) Archive(ctx context.Context, id string) (*task.Task, error) {
	return a.setStatus(ctx, id, task.StatusArchived)
}

func (a *App) DeleteTask(ctx context.Context, id string) (*task.Task, error) {
	return a.mutateTask(ctx, id, func(t *task.Task) error {
		now := a.now()
		t.DeletedAt = &now
		return nil
	})
}

// MoveTask переносит задачу в начало другого списка.
func (a *App) MoveTask(ctx context.Context, id, listID string) (*task.Task, error) {
	target, err := a.liveList(ctx, listID)
	if err != nil {
		return nil, err
	}
	return a.mutateTask(ctx, id, func(t *task.Task) error {
		if t.ListID == target.ID {
			return nil
		}
		pos, err := a.nextTaskPosition(ctx, t.UID, target.ID)
		if err != nil {
			return err
		}
		t.ListID = target.ID
		t.Position = pos
		return nil
	})
}

// ReorderTasks раздает задачам списка позиции в указанном порядке (первая окажется сверху).
// Задачи, не названные в ids, не меняются.
func (a *App) ReorderTasks(ctx context.Context, listID string, ids []string) ([]task.Task, error) {
	l, err := a.liveList(ctx, listID)
	if err != nil {
		return nil, err
	}

	positions := position.Reorder(len(ids))
	out := make([]task.Task, 0, len(ids))
	now := a.now()

	err = a.store.WithinTx(ctx, func(ctx context.Context, tx *Store) error {
		for i, id := range ids {
			t, err := tx.Replica.GetTask(ctx, l.UID, id)
			if err != nil {
				return fmt.Errorf("задача %s: %w", id, err)
			}
			if t.IsDeleted() || t.ListID != l.ID {
				return fmt.Errorf("задача %s: %w", id, ErrNotFound)
			}
			t.Position = positions[i]
			t.UpdatedAt = now
			if err := a.putTask(ctx, tx, t); err != nil {
				return err
			}
			out = append(out, *t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *App) setStatus(ctx context.Context, id string, s task.Status) (*task.Task, error) {
	return a.mutateTask(ctx, id, func(t *task.Task) error {
		t.SetStatus(s, a.now())
		return nil
	})
}

func (a *App) mutateTask(ctx context.Context, id string, fn func(t *task.Task) error) (*task.Task, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	t, err := a.store.Replica.GetTask(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() {
		return nil, ErrNotFound
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = a.now()
	if err := a.saveTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *App) liveList(ctx context.Context, id string) (*list.List, error) {
	uid, err := a.UID(ctx)
	if err != nil {
		return nil, err
	}
	l, err := a.store.Replica.GetList(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if l.IsDeleted() {
		return nil, ErrListDeleted
	}
	return l, nil
}

func (a *App) nextTaskPosition(ctx context.Context, uid, listID string) (float64, error) {
	tasks, err := a.store.Replica.Tasks(ctx, uid, TaskFilter{ListID: listID})
	if err != nil {
		return 0, err
	}
	positions := make([]float64, len(tasks))
	for i := range tasks {
		positions[i] = tasks[i].Position
	}
	return position.Next(positions), nil
}

func (a *App) saveList(ctx context.Context, l *list.List) error {
	return a.store.WithinTx(ctx, func(ctx context.Context, tx *Store) error {
		return a.putList(ctx, tx, l)
	})
}

func (a *App) saveTask(ctx context.Context, t *task.Task) error {
	return a.store.WithinTx(ctx, func(ctx context.Context, tx *Store) error {
		return a.putTask(ctx, tx, t)
	})
}

func (a *App) putList(ctx context.Context, tx *Store, l *list.List) error {
	if err := validateList(l); err != nil {
		return err
	}
	if err := tx.Replica.PutList(ctx, l); err != nil {
		return err
	}
	e, err := newListEntry(l, a.now())
	if err != nil {
		return err
	}
	return tx.Outbox.Enqueue(ctx, e)
}

func (a *App) putTask(ctx context.Context, tx *Store, t *task.Task) error {
	if err := validateTask(t); err != nil {
		return err
	}
	if err := tx.Replica.PutTask(ctx, t); err != nil {
		return err
	}
	e, err := newTaskEntry(t, a.now())
	if err != nil {
		return err
	}
	return tx.Outbox.Enqueue(ctx, e)
}

func (a *App) now() time.Time {
	return a.clock().UTC()
}

// IsValidationError сообщает, что мутация отклонена проверкой полей.
func IsValidationError(err error) bool {
	_, ok := validation.As(err)
	return ok
}
