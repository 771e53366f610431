package health

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) healthCheckOp() huma.Operation {
	return huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness and storage check",
		Description: "Reports whether the API is up and the list/task storage answers a ping",
		Tags:        []string{"health"},
		Middlewares: h.middleware,
	}
}
