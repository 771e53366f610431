package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

// Servicer интерфейс сервиса согласования
type Servicer interface {
	// ApplyLists применяет пакет команд списков в порядке отправки
	ApplyLists(ctx context.Context, uid string, cmds []ListCommand) ([]list.List, error)

	// ApplyTasks применяет пакет команд задач в порядке отправки
	ApplyTasks(ctx context.Context, uid string, cmds []TaskCommand) ([]task.Task, error)

	CreateList(ctx context.Context, uid string, cmd CreateList) (*list.List, error)
	UpdateList(ctx context.Context, uid string, cmd UpdateList) (*list.List, error)
	CreateTask(ctx context.Context, uid string, cmd CreateTask) (*task.Task, error)
	UpdateTask(ctx context.Context, uid string, cmd UpdateTask) (*task.Task, error)

	// Lists возвращает списки, измененные после since (все, если since == nil)
	Lists(ctx context.Context, uid string, since *time.Time) ([]list.List, error)

	// Tasks возвращает задачи, измененные после since (все, если since == nil)
	Tasks(ctx context.Context, uid string, since *time.Time) ([]task.Task, error)
}

// ServiceConfig конфигурация сервиса согласования
type ServiceConfig struct {
	MaxBatchSize    int
	MaxApplyRetries int
	Clock           func() time.Time
	NewID           func() string
	Notifier        Notifier
}

// Service реализация сервиса согласования
type Service struct {
	repo   Repository
	log    *slog.Logger
	config *ServiceConfig
}

// NewService создает новый сервис согласования
func NewService(repo Repository, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 500
	}
	if config.MaxApplyRetries <= 0 {
		config.MaxApplyRetries = 5
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if config.Notifier == nil {
		config.Notifier = nopNotifier{}
	}

	return &Service{
		repo:   repo,
		log:    log.With(slog.String("component", "sync_service")),
		config: config,
	}
}

// ApplyLists применяет пакет списков. Первая ошибка прерывает пакет;
// примененные до нее записи возвращаются вместе с *BatchError и не откатываются.
func (s *Service) ApplyLists(ctx context.Context, uid string, cmds []ListCommand) ([]list.List, error) {
	if err := s.checkBatch(uid, len(cmds)); err != nil {
		return nil, err
	}

	results := make([]list.List, 0, len(cmds))
	defer func() { s.notify(uid, KindList, len(results)) }()

	for i, cmd := range cmds {
		l, err := s.applyList(ctx, uid, cmd, false)
		if err != nil {
			s.log.Warn("list batch aborted",
				slog.String("uid", uid),
				slog.Int("index", i),
				slog.Int("applied", len(results)),
				slog.String("error", err.Error()),
			)
			return results, &BatchError{Index: i, Err: err}
		}
		results = append(results, *l)
	}

	s.log.Debug("list batch applied", slog.String("uid", uid), slog.Int("count", len(results)))
	return results, nil
}

// ApplyTasks применяет пакет задач с той же семантикой, что и ApplyLists.
func (s *Service) ApplyTasks(ctx context.Context, uid string, cmds []TaskCommand) ([]task.Task, error) {
	if err := s.checkBatch(uid, len(cmds)); err != nil {
		return nil, err
	}

	results := make([]task.Task, 0, len(cmds))
	inboxCreated := false
	defer func() {
		s.notify(uid, KindTask, len(results))
		if inboxCreated {
			s.notify(uid, KindList, 1)
		}
	}()

	for i, cmd := range cmds {
		t, created, err := s.applyTask(ctx, uid, cmd, false)
		inboxCreated = inboxCreated || created
		if err != nil {
			s.log.Warn("task batch aborted",
				slog.String("uid", uid),
				slog.Int("index", i),
				slog.Int("applied", len(results)),
				slog.String("error", err.Error()),
			)
			return results, &BatchError{Index: i, Err: err}
		}
		results = append(results, *t)
	}

	s.log.Debug("task batch applied", slog.String("uid", uid), slog.Int("count", len(results)))
	return results, nil
}

// CreateList создает список или перезаписывает собственный список с тем же id.
func (s *Service) CreateList(ctx context.Context, uid string, cmd CreateList) (*list.List, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}
	l, err := s.applyList(ctx, uid, cmd, false)
	if err != nil {
		return nil, err
	}
	s.notify(uid, KindList, 1)
	return l, nil
}

// UpdateList изменяет список пользователя. Чужой или отсутствующий id дает ErrNotFound.
func (s *Service) UpdateList(ctx context.Context, uid string, cmd UpdateList) (*list.List, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}
	l, err := s.applyList(ctx, uid, cmd, true)
	if err != nil {
		return nil, err
	}
	s.notify(uid, KindList, 1)
	return l, nil
}

// CreateTask создает задачу или перезаписывает собственную задачу с тем же id.
func (s *Service) CreateTask(ctx context.Context, uid string, cmd CreateTask) (*task.Task, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}
	t, created, err := s.applyTask(ctx, uid, cmd, false)
	if created {
		s.notify(uid, KindList, 1)
	}
	if err != nil {
		return nil, err
	}
	s.notify(uid, KindTask, 1)
	return t, nil
}

// UpdateTask изменяет задачу пользователя. Чужой или отсутствующий id дает ErrNotFound.
func (s *Service) UpdateTask(ctx context.Context, uid string, cmd UpdateTask) (*task.Task, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}
	t, created, err := s.applyTask(ctx, uid, cmd, true)
	if created {
		s.notify(uid, KindList, 1)
	}
	if err != nil {
		return nil, err
	}
	s.notify(uid, KindTask, 1)
	return t, nil
}

// Lists возвращает списки пользователя, измененные или удаленные после since.
func (s *Service) Lists(ctx context.Context, uid string, since *time.Time) ([]list.List, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}
	rows, err := s.repo.ListListsSince(ctx, uid, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read lists: %w", err)
	}
	if rows == nil {
		rows = []list.List{}
	}
	return rows, nil
}

// Tasks возвращает задачи пользователя, измененные или удаленные после since.
func (s *Service) Tasks(ctx context.Context, uid string, since *time.Time) ([]task.Task, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}
	rows, err := s.repo.ListTasksSince(ctx, uid, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	if rows == nil {
		rows = []task.Task{}
	}
	return rows, nil
}

func (s *Service) checkBatch(uid string, n int) error {
	if uid == "" {
		return ErrUIDRequired
	}
	if n > s.config.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, s.config.MaxBatchSize)
	}
	return nil
}

// applyList выполняет обе фазы в одной транзакции хранилища:
// сначала сам список, затем надгробия зависимых задач.
func (s *Service) applyList(ctx context.Context, uid string, cmd ListCommand, ownedOnly bool) (*list.List, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	id := cmd.EntityID()
	if id == "" {
		id = s.config.NewID()
	}

	var result *list.List
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		l, err := s.upsertList(ctx, repo, uid, id, cmd, ownedOnly)
		if err != nil {
			return err
		}

		if l.DeletedAt != nil {
			n, err := repo.TombstoneTasksByList(ctx, uid, l.ID, *l.DeletedAt, s.now())
			if err != nil {
				return fmt.Errorf("failed to cascade list delete: %w", err)
			}
			s.log.Debug("list delete cascaded",
				slog.String("uid", uid),
				slog.String("list_id", l.ID),
				slog.Int64("tasks", n),
			)
		}

		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) upsertList(ctx context.Context, repo Repository, uid, id string, cmd ListCommand, ownedOnly bool) (*list.List, error) {
	for attempt := 0; ; attempt++ {
		existing, err := repo.FindList(ctx, id)
		if errors.Is(err, ErrNotFound) {
			if _, isUpdate := cmd.(UpdateList); isUpdate {
				return nil, ErrNotFound
			}

			now := s.now()
			l := &list.List{ID: id, UID: uid, Revision: 0, CreatedAt: now, UpdatedAt: now}
			cmd.applyTo(l)
			l.UID = uid

			err = repo.InsertList(ctx, l)
			if errors.Is(err, ErrAlreadyExists) && attempt < s.config.MaxApplyRetries {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to insert list: %w", err)
			}
			return l, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find list: %w", err)
		}

		if existing.UID != uid {
			if ownedOnly {
				return nil, ErrNotFound
			}
			return nil, &ConflictError{Kind: KindList, ID: id}
		}

		next := *existing
		cmd.mergeInto(&next)
		next.UID = uid
		next.Revision = existing.Revision + 1
		next.UpdatedAt = s.now()

		err = repo.UpdateList(ctx, &next, existing.Revision)
		if errors.Is(err, ErrRevisionConflict) && attempt < s.config.MaxApplyRetries {
			s.log.Debug("list revision moved, retrying", slog.String("id", id), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update list: %w", err)
		}
		return &next, nil
	}
}

// applyTask возвращает признак того, что по дороге был создан Inbox.
func (s *Service) applyTask(ctx context.Context, uid string, cmd TaskCommand, ownedOnly bool) (*task.Task, bool, error) {
	if err := cmd.Validate(); err != nil {
		return nil, false, err
	}
	id := cmd.EntityID()
	if id == "" {
		id = s.config.NewID()
	}

	inboxCreated := false
	for attempt := 0; ; attempt++ {
		existing, err := s.repo.FindTask(ctx, id)
		if errors.Is(err, ErrNotFound) {
			if _, isUpdate := cmd.(UpdateTask); isUpdate {
				return nil, inboxCreated, ErrNotFound
			}

			now := s.now()
			t := &task.Task{ID: id, UID: uid, Revision: 0, CreatedAt: now, UpdatedAt: now}
			cmd.applyTo(t)
			t.UID = uid
			created, err := s.defaultList(ctx, uid, t)
			inboxCreated = inboxCreated || created
			if err != nil {
				return nil, inboxCreated, err
			}
			t.SyncStatusTimestamps(now)

			err = s.repo.InsertTask(ctx, t)
			if errors.Is(err, ErrAlreadyExists) && attempt < s.config.MaxApplyRetries {
				continue
			}
			if err != nil {
				return nil, inboxCreated, fmt.Errorf("failed to insert task: %w", err)
			}
			return t, inboxCreated, nil
		}
		if err != nil {
			return nil, inboxCreated, fmt.Errorf("failed to find task: %w", err)
		}

		if existing.UID != uid {
			if ownedOnly {
				return nil, inboxCreated, ErrNotFound
			}
			return nil, inboxCreated, &ConflictError{Kind: KindTask, ID: id}
		}

		now := s.now()
		next := *existing
		cmd.mergeInto(&next)
		next.UID = uid
		created, err := s.defaultList(ctx, uid, &next)
		inboxCreated = inboxCreated || created
		if err != nil {
			return nil, inboxCreated, err
		}
		carryStatusStamps(existing, &next)
		next.SyncStatusTimestamps(now)
		next.Revision = existing.Revision + 1
		next.UpdatedAt = now

		err = s.repo.UpdateTask(ctx, &next, existing.Revision)
		if errors.Is(err, ErrRevisionConflict) && attempt < s.config.MaxApplyRetries {
			s.log.Debug("task revision moved, retrying", slog.String("id", id), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, inboxCreated, fmt.Errorf("failed to update task: %w", err)
		}
		return &next, inboxCreated, nil
	}
}

// defaultList подставляет Inbox пользователя вместо пустого list_id.
func (s *Service) defaultList(ctx context.Context, uid string, t *task.Task) (bool, error) {
	if t.ListID != "" {
		return false, nil
	}
	t.ListID = list.InboxID(uid)
	return s.ensureInbox(ctx, uid)
}

// ensureInbox находит или создает Inbox пользователя.
func (s *Service) ensureInbox(ctx context.Context, uid string) (bool, error) {
	id := list.InboxID(uid)
	for attempt := 0; ; attempt++ {
		existing, err := s.repo.FindList(ctx, id)
		if err == nil {
			if existing.UID != uid {
				return false, &ConflictError{Kind: KindList, ID: id}
			}
			return false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("failed to find inbox: %w", err)
		}

		err = s.repo.InsertList(ctx, list.NewInbox(uid, s.now()))
		if errors.Is(err, ErrAlreadyExists) && attempt < s.config.MaxApplyRetries {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to create inbox: %w", err)
		}
		s.log.Info("inbox created", slog.String("uid", uid))
		return true, nil
	}
}

// carryStatusStamps сохраняет метку статуса, если снимок пришел без нее,
// а статус не изменился.
func carryStatusStamps(prev, next *task.Task) {
	if next.Status == prev.Status {
		if next.DoneAt == nil {
			next.DoneAt = prev.DoneAt
		}
		if next.ArchivedAt == nil {
			next.ArchivedAt = prev.ArchivedAt
		}
	}
}

func (s *Service) notify(uid string, kind Kind, applied int) {
	if applied > 0 {
		s.config.Notifier.Notify(uid, kind)
	}
}

func (s *Service) now() time.Time {
	return s.config.Clock().UTC().Truncate(time.Microsecond)
}
