// GET  /health             # Состояние сервиса (публичный)
// GET  /lists?since=       # Инкрементальное чтение списков (uid)
// POST /lists/batch        # Пакетное применение списков (uid)
// POST /lists              # Создать список (uid)
// PATCH|PUT /lists/{id}    # Изменить список (uid)
// GET  /tasks?since=       # Инкрементальное чтение задач (uid)
// POST /tasks/batch        # Пакетное применение задач (uid)
// POST /tasks              # Создать задачу (uid)
// PATCH|PUT /tasks/{id}    # Изменить задачу (uid)
// GET  /changes            # Websocket с уведомлениями об изменениях (uid)

package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/health"
	listAPI "github.com/mammuth/gravity-tasks/internal/app/server/api/http/list"
	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/middleware"
	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/middleware/identity"
	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/middleware/logger"
	taskAPI "github.com/mammuth/gravity-tasks/internal/app/server/api/http/task"
	"github.com/mammuth/gravity-tasks/internal/app/server/changefeed"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
)

type Handlers struct {
	Health *health.Handler
	List   *listAPI.Handler
	Task   *taskAPI.Handler
}

// Deps: зависимости HTTP-слоя. Storage может быть nil.
type Deps struct {
	Service   sync.Servicer
	Hub       *changefeed.Hub
	Storage   health.Pinger
	JWTSecret string
	Log       *slog.Logger
}

// New создает *chi.Mux со всеми операциями через huma.Register и websocket /changes
func New(d Deps) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)

	config := huma.DefaultConfig("Gravity Tasks API", "1.0.0")
	// тела ответов без $schema: клиент декодирует их как есть
	config.CreateHooks = nil
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, config)

	id := identity.New(d.JWTSecret, d.Log)
	h := handlers(d, id)
	h.Health.SetupRoutes(API)
	h.List.SetupRoutes(API)
	h.Task.SetupRoutes(API)

	if d.Hub != nil {
		mux.Method(http.MethodGet, "/changes", id.Handler(d.Hub))
	}

	return mux
}

func handlers(d Deps, id *identity.Identity) *Handlers {
	loggerMW := logger.New(d.Log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := health.NewHandler(d.Log, d.Storage, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(id.Middleware())
	listHandler := listAPI.NewHandler(d.Service, d.Log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(id.Middleware())
	taskHandler := taskAPI.NewHandler(d.Service, d.Log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		List:   listHandler,
		Task:   taskHandler,
	}
}
