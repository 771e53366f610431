package list

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) indexOp() huma.Operation {
	return huma.Operation{
		OperationID: "lists-index",
		Method:      http.MethodGet,
		Path:        "/lists",
		Summary:     "Списки пользователя, измененные после since",
		Tags:        []string{"lists"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) batchOp() huma.Operation {
	return huma.Operation{
		OperationID: "lists-batch",
		Method:      http.MethodPost,
		Path:        "/lists/batch",
		Summary:     "Применить пакет списков",
		Tags:        []string{"lists"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) createOp() huma.Operation {
	return huma.Operation{
		OperationID:   "lists-create",
		Method:        http.MethodPost,
		Path:          "/lists",
		Summary:       "Создать список",
		Tags:          []string{"lists"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) updateOp(method string) huma.Operation {
	return huma.Operation{
		OperationID: "lists-update-" + method,
		Method:      method,
		Path:        "/lists/{id}",
		Summary:     "Изменить список",
		Tags:        []string{"lists"},
		Middlewares: h.middleware,
	}
}
