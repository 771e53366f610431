package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/apierr"
	"github.com/mammuth/gravity-tasks/internal/app/server/api/http/middleware/logger"
)

const (
	HeaderUID  = "X-UID"
	QueryUID   = "uid"
	bearerPref = "Bearer "
)

var (
	ErrMissing      = errors.New("uid is missing")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type contextKey string

const uidKey contextKey = "uid"

// Identity определяет uid вызывающего. Без секрета доверяет X-UID или ?uid=,
// с секретом требует HS256 Bearer-токен, у которого sub содержит uid.
type Identity struct {
	secret []byte
	log    *slog.Logger
}

func New(jwtSecret string, log *slog.Logger) *Identity {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &Identity{
		secret: secret,
		log:    log.With(slog.String("component", "identity")),
	}
}

// Resolve достает uid из заголовков и query-параметров запроса.
func (i *Identity) Resolve(header func(string) string, query func(string) string) (string, error) {
	if i.secret == nil {
		if uid := strings.TrimSpace(header(HeaderUID)); uid != "" {
			return uid, nil
		}
		if uid := strings.TrimSpace(query(QueryUID)); uid != "" {
			return uid, nil
		}
		return "", ErrMissing
	}

	raw := header("Authorization")
	if !strings.HasPrefix(raw, bearerPref) {
		return "", ErrMissing
	}

	token, err := jwt.Parse(raw[len(bearerPref):], func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// Middleware возвращает middleware для Huma с сигнатурой func(ctx Context, next func(Context))
func (i *Identity) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		uid, err := i.Resolve(ctx.Header, func(k string) string { return ctx.Query(k) })
		if err != nil {
			i.log.Debug("request rejected", slog.String("path", ctx.URL().Path), slog.String("error", err.Error()))
			logger.Annotate(ctx.Context(), slog.String("reject", err.Error()))
			apiErr := rejection(err)
			ctx.SetStatus(apiErr.HTTPStatus)
			ctx.SetHeader("Content-Type", "application/json")
			if err := json.NewEncoder(ctx.BodyWriter()).Encode(apiErr); err != nil {
				i.log.Error("failed to write rejection", slog.String("error", err.Error()))
			}
			return
		}

		logger.Annotate(ctx.Context(), slog.String("uid", uid))
		next(huma.WithContext(ctx, WithUID(ctx.Context(), uid)))
	}
}

// Handler: то же для обычных net/http маршрутов (websocket /changes).
func (i *Identity) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := i.Resolve(r.Header.Get, r.URL.Query().Get)
		if err != nil {
			apiErr := rejection(err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(apiErr.HTTPStatus)
			_ = json.NewEncoder(w).Encode(apiErr)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUID(r.Context(), uid)))
	})
}

func rejection(err error) *apierr.Error {
	if errors.Is(err, ErrInvalidToken) {
		return apierr.New(http.StatusUnauthorized, apierr.CodeInvalidToken)
	}
	return apierr.New(http.StatusUnauthorized, apierr.CodeUIDRequired)
}

func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

func GetUID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidKey).(string)
	return uid, ok && uid != ""
}
