package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/audit"
	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/httputil"
	"github.com/kwizz/kwizz-go/internal/model"
)

type contextKey string

const HostContextKey contextKey = "host"

func GetHost(ctx context.Context) *model.Host {
	if host, ok := ctx.Value(HostContextKey).(*model.Host); ok {
		return host
	}
	return nil
}

// WithHost returns ctx carrying host, as the auth middleware does.
func WithHost(ctx context.Context, host *model.Host) context.Context {
	return context.WithValue(ctx, HostContextKey, host)
}

// HostAuthenticator resolves a bearer token to a host.
type HostAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Host, error)
}

type AuthMiddleware struct {
	hosts HostAuthenticator
	audit audit.Logger
}

func NewAuthMiddleware(hosts HostAuthenticator, auditLogger audit.Logger) *AuthMiddleware {
	if auditLogger == nil {
		auditLogger = audit.Default
	}
	return &AuthMiddleware{hosts: hosts, audit: auditLogger}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		host, err := m.hosts.Authenticate(r.Context(), token)
		if err != nil {
			if appErr, ok := apperrors.AsAppError(err); ok {
				log.Warn().Str("path", r.URL.Path).Msg("auth middleware: invalid token attempt")
				m.audit.Log(r.Context(), audit.Event{
					Type:      audit.EventAuthFailure,
					IP:        audit.ClientIP(r),
					UserAgent: r.UserAgent(),
					Details:   map[string]interface{}{"path": r.URL.Path},
				})
				httputil.WriteError(w, appErr)
				return
			}
			log.Error().Err(err).Msg("auth middleware: database error")
			httputil.WriteError(w, apperrors.Internal("Authentication failed"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithHost(r.Context(), host)))
	})
}

// extractToken reads the bearer header, falling back to a token query
// parameter for EventSource and WebSocket clients that cannot set headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
