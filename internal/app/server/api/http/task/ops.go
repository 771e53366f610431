package task

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) indexOp() huma.Operation {
	return huma.Operation{
		OperationID: "tasks-index",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "Задачи пользователя, измененные после since",
		Tags:        []string{"tasks"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) batchOp() huma.Operation {
	return huma.Operation{
		OperationID: "tasks-batch",
		Method:      http.MethodPost,
		Path:        "/tasks/batch",
		Summary:     "Применить пакет задач",
		Description: "Задача без list_id попадает в Inbox пользователя, который создается при первом обращении.",
		Tags:        []string{"tasks"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) createOp() huma.Operation {
	return huma.Operation{
		OperationID:   "tasks-create",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Создать задачу",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) updateOp(method string) huma.Operation {
	return huma.Operation{
		OperationID: "tasks-update-" + method,
		Method:      method,
		Path:        "/tasks/{id}",
		Summary:     "Изменить задачу",
		Tags:        []string{"tasks"},
		Middlewares: h.middleware,
	}
}
