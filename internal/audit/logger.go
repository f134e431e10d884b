package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventHostCreate       EventType = "host_create"
	EventGameCreate       EventType = "game_create"
	EventCreditDebit      EventType = "credit_debit"
	EventCreditCompensate EventType = "credit_compensate"
	EventCreditPurchase   EventType = "credit_purchase"
	EventAuthFailure      EventType = "auth_failure"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventGamesSwept       EventType = "games_swept"
	EventUnpaidRemoved    EventType = "unpaid_games_removed"
)

type Event struct {
	Type      EventType
	HostID    string
	GameID    string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Logger receives audit events. The package-level Log writes to the global
// zerolog logger; services take a Logger so tests can capture events.
type Logger interface {
	Log(ctx context.Context, event Event)
}

type LoggerFunc func(ctx context.Context, event Event)

func (f LoggerFunc) Log(ctx context.Context, event Event) { f(ctx, event) }

// Default writes through the global logger.
var Default Logger = LoggerFunc(Log)

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "ledger").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.HostID != "" {
		logger = logger.With().Str("host_id", event.HostID).Logger()
	}
	if event.GameID != "" {
		logger = logger.With().Str("game_id", event.GameID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
