package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
)

const (
	streamBuffer = 64
	// The server pings every 54s; a feed silent for longer is dead.
	feedIdleTimeout = 60 * time.Second
	pongWriteWait   = 10 * time.Second
)

func (c *Client) feedURL(gameID string) string {
	u := c.baseURL + "/v1/games/" + escape(gameID) + "/feed"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Subscribe implements gamesync.Feed over the WebSocket change feed. It
// returns once the server confirms the subscription is live.
func (c *Client) Subscribe(ctx context.Context, gameID string) (gamesync.Stream, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.feedURL(gameID), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(defaultTimeout))
	}
	var first model.FeedFrame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("await subscription: %w", err)
	}
	if first.Type != model.FrameSubscribed {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", first.Type)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.feedIdle))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.feedIdle))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(pongWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	s := &wsStream{
		idle:    c.feedIdle,
		conn:    conn,
		changes: make(chan model.Change, streamBuffer),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.read()
	return s, nil
}

type wsStream struct {
	idle    time.Duration
	conn    *websocket.Conn
	changes chan model.Change
	errc    chan error
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *wsStream) Changes() <-chan model.Change { return s.changes }
func (s *wsStream) Err() <-chan error            { return s.errc }

func (s *wsStream) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	s.wg.Wait()
}

func (s *wsStream) read() {
	defer s.wg.Done()
	for {
		var frame model.FeedFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.fail(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		switch frame.Type {
		case model.FrameChange:
			if frame.Change == nil {
				continue
			}
			select {
			case s.changes <- *frame.Change:
			case <-s.done:
				return
			}
		case model.FrameError:
			s.fail(errors.New(frame.Error))
			return
		}
	}
}

func (s *wsStream) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.errc <- err:
	default:
	}
}
