package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are native apps and the CLI; there is no browser origin to pin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /v1/games/{gameID}/feed
func (h *StreamHandler) Feed(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	stream, err := h.open(r.Context(), gameID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("gameId", gameID).Msg("websocket feed established")

	// The read loop only services control frames and notices the peer going away.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, model.FeedFrame{Type: model.FrameSubscribed}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Info().Str("gameId", gameID).Msg("websocket feed closed by client")
			return

		case err := <-stream.Err():
			log.Warn().Err(err).Str("gameId", gameID).Msg("websocket change stream ended")
			_ = writeFrame(conn, model.FeedFrame{Type: model.FrameError, Error: err.Error()})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "change stream ended"),
				time.Now().Add(wsWriteWait))
			return

		case change, ok := <-stream.Changes():
			if !ok {
				return
			}
			if err := writeFrame(conn, model.FeedFrame{Type: model.FrameChange, Change: &change}); err != nil {
				log.Debug().Err(err).Str("gameId", gameID).Msg("websocket write failed")
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, msg model.FeedFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
