package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
)

const HeartbeatInterval = 15 * time.Second

// GameLookup confirms a game exists before a stream is opened for it.
type GameLookup interface {
	Game(ctx context.Context, gameID string) (*model.Game, error)
}

// StreamHandler serves a game's change feed as server-sent events and over
// WebSocket. Both carry model.Change values as JSON.
type StreamHandler struct {
	games GameLookup
	feed  gamesync.Feed
}

func NewStreamHandler(games GameLookup, feed gamesync.Feed) *StreamHandler {
	return &StreamHandler{games: games, feed: feed}
}

// open checks the game and subscribes to its changes.
func (h *StreamHandler) open(ctx context.Context, gameID string) (gamesync.Stream, error) {
	if _, err := h.games.Game(ctx, gameID); err != nil {
		return nil, err
	}
	stream, err := h.feed.Subscribe(ctx, gameID)
	if err != nil {
		return nil, apperrors.TransientSyncFailure(err)
	}
	return stream, nil
}

// GET /v1/games/{gameID}/events
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()
	stream, err := h.open(ctx, gameID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	log.Info().Str("gameId", gameID).Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"gameId": gameID}); err != nil {
		return
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("gameId", gameID).Msg("sse connection closed by client")
			return

		case err := <-stream.Err():
			log.Warn().Err(err).Str("gameId", gameID).Msg("sse change stream ended")
			_ = h.sendEvent(w, flusher, "error", map[string]any{"error": err.Error()})
			return

		case change, ok := <-stream.Changes():
			if !ok {
				return
			}
			if err := h.sendEvent(w, flusher, "change", change); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("gameId", gameID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *StreamHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, eventType, jsonData)
}

func (h *StreamHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
