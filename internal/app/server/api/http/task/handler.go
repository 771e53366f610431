package task

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/apierr"
	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/middleware/identity"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
)

type Handler struct {
	service    sync.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service sync.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.indexOp(), h.index)
	huma.Register(api, h.batchOp(), h.batch)
	huma.Register(api, h.createOp(), h.create)
	huma.Register(api, h.updateOp(http.MethodPatch), h.update)
	huma.Register(api, h.updateOp(http.MethodPut), h.update)
}

func (h *Handler) index(ctx context.Context, input *indexInput) (*indexOutput, error) {
	uid, ok := identity.GetUID(ctx)
	if !ok {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUIDRequired)
	}

	since, err := apierr.ParseSince(input.Since)
	if err != nil {
		return nil, err
	}

	rows, err := h.service.Tasks(ctx, uid, since)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &indexOutput{Body: rows}, nil
}

func (h *Handler) batch(ctx context.Context, input *batchInput) (*batchOutput, error) {
	uid, ok := identity.GetUID(ctx)
	if !ok {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUIDRequired)
	}

	cmds := make([]sync.TaskCommand, 0, len(input.Body.Tasks))
	for _, p := range input.Body.Tasks {
		cmds = append(cmds, p.command())
	}

	rows, err := h.service.ApplyTasks(ctx, uid, cmds)
	if err != nil {
		h.log.Debug("task batch rejected", slog.String("uid", uid), slog.String("error", err.Error()))
		return nil, apierr.From(err)
	}
	return &batchOutput{Body: rows}, nil
}

func (h *Handler) create(ctx context.Context, input *createInput) (*rowOutput, error) {
	uid, ok := identity.GetUID(ctx)
	if !ok {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUIDRequired)
	}

	t, err := h.service.CreateTask(ctx, uid, input.Body.Task.create())
	if err != nil {
		return nil, apierr.From(err)
	}
	return &rowOutput{Body: t}, nil
}

func (h *Handler) update(ctx context.Context, input *updateInput) (*rowOutput, error) {
	uid, ok := identity.GetUID(ctx)
	if !ok {
		return nil, apierr.New(http.StatusUnauthorized, apierr.CodeUIDRequired)
	}

	t, err := h.service.UpdateTask(ctx, uid, input.Body.Task.update(input.ID))
	if err != nil {
		return nil, apierr.From(err)
	}
	return &rowOutput{Body: t}, nil
}
