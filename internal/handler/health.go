package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kwizz/kwizz-go/internal/config"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UnixMilli(),
	})
}
