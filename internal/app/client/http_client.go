package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/client/config"
	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

// RemoteAPI: серверная часть протокола согласования, которой пользуется движок синхронизации.
type RemoteAPI interface {
	ApplyLists(ctx context.Context, uid string, rows []list.List) ([]list.List, error)
	ApplyTasks(ctx context.Context, uid string, rows []task.Task) ([]task.Task, error)
	Lists(ctx context.Context, uid string, since *time.Time) ([]list.List, error)
	Tasks(ctx context.Context, uid string, since *time.Time) ([]task.Task, error)
}

// ErrTransport: сервер недоступен, цикл можно повторить.
var ErrTransport = errors.New("transport failure")

// APIError: ответ сервера со статусом 4xx/5xx.
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"error"`
	ID         string   `json:"id,omitempty"`
	Index      *int     `json:"index,omitempty"`
	Details    []string `json:"details,omitempty"`
	// Detail заполняется ошибками, которые huma формирует сама (RFC 9457).
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server error %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(": " + e.Code)
	}
	if e.ID != "" {
		b.WriteString(" (id " + e.ID + ")")
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	if len(e.Details) > 0 {
		b.WriteString(": " + strings.Join(e.Details, "; "))
	}
	return b.String()
}

// IsOwnershipConflict сообщает, что id уже занят другим пользователем.
// Такую запись повторять бессмысленно.
func (e *APIError) IsOwnershipConflict() bool {
	return e.Code == "list_id_conflict" || e.Code == "task_id_conflict"
}

// Retriable сообщает, имеет ли смысл повторить тот же запрос позже.
func (e *APIError) Retriable() bool {
	return e.StatusCode >= 500 || e.Code == "revision_conflict"
}

// APIClient: HTTP-клиент сервера согласования
type APIClient struct {
	client  *http.Client
	log     *slog.Logger
	baseURL string
	token   string
}

func NewAPIClient(cfg *config.Config, log *slog.Logger) *APIClient {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &APIClient{
		client:  client,
		log:     log.With(slog.String("component", "api_client")),
		baseURL: cfg.BaseURL(),
		token:   cfg.AuthToken,
	}
}

// HealthCheck проверяет доступность сервера
func (c *APIClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *APIClient) ApplyLists(ctx context.Context, uid string, rows []list.List) ([]list.List, error) {
	body := struct {
		Lists []list.List `json:"lists"`
	}{Lists: rows}

	var out []list.List
	if err := c.do(ctx, http.MethodPost, "/lists/batch", uid, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) ApplyTasks(ctx context.Context, uid string, rows []task.Task) ([]task.Task, error) {
	body := struct {
		Tasks []task.Task `json:"tasks"`
	}{Tasks: rows}

	var out []task.Task
	if err := c.do(ctx, http.MethodPost, "/tasks/batch", uid, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) Lists(ctx context.Context, uid string, since *time.Time) ([]list.List, error) {
	var out []list.List
	if err := c.do(ctx, http.MethodGet, "/lists"+sinceQuery(since), uid, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) Tasks(ctx context.Context, uid string, since *time.Time) ([]task.Task, error) {
	var out []task.Task
	if err := c.do(ctx, http.MethodGet, "/tasks"+sinceQuery(since), uid, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangesURL возвращает адрес websocket-ленты изменений.
func (c *APIClient) ChangesURL() string {
	u := c.baseURL + "/changes"
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

// Headers возвращает заголовки идентичности для uid.
func (c *APIClient) Headers(uid string) http.Header {
	h := http.Header{}
	if uid != "" {
		h.Set("X-UID", uid)
	}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *APIClient) do(ctx context.Context, method, path, uid string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header = c.Headers(uid)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("sending request", slog.String("method", method), slog.String("path", path))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: ошибка чтения ответа: %w", ErrTransport, err)
	}

	c.log.Debug("response received", slog.String("path", path), slog.Int("status", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}
	return nil
}

func sinceQuery(since *time.Time) string {
	if since == nil {
		return ""
	}
	return "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
}
