// Package gamesync keeps a live local mirror of one game, fed by a change
// subscription with a polling fallback.
package gamesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/telemetry"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

var errStreamEnded = errors.New("change stream ended")

// Handle is an open synchronization session for one game. All methods are
// safe for concurrent use.
type Handle struct {
	gameID    string
	snapshots Snapshotter
	feed      Feed
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	active  bool
	status  Status
	err     error
	mirror  *mirror
	updates chan struct{}

	closeOnce sync.Once
}

// Open fetches the game's current state and starts keeping it in sync. It
// fails with NOT_FOUND when no game has the given id.
func Open(ctx context.Context, gameID string, snapshots Snapshotter, feed Feed, opts Options) (*Handle, error) {
	opts = opts.withDefaults()

	snap, err := snapshots.Snapshot(ctx, gameID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
	if snap == nil || snap.Game == nil {
		return nil, apperrors.NotFound("Game")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		gameID:    gameID,
		snapshots: snapshots,
		feed:      feed,
		opts:      opts,
		ctx:       runCtx,
		cancel:    cancel,
		active:    true,
		status:    StatusConnecting,
		mirror:    newMirror(gameID, snap),
		updates:   make(chan struct{}, 1),
	}

	h.wg.Add(2)
	go h.run()
	go h.poll()

	return h, nil
}

func (h *Handle) GameID() string { return h.gameID }

// Close stops the subscription and polling and waits for them to exit. No
// merge or notification happens after Close returns.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.active = false
		h.mu.Unlock()

		h.cancel()
		h.wg.Wait()
		close(h.updates)
	})
}

// Updates delivers a signal after any change to the mirror or status.
// Signals coalesce; the channel is closed by Close.
func (h *Handle) Updates() <-chan struct{} { return h.updates }

func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Err returns the terminal error once the handle has given up reconnecting.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *Handle) Game() GameView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.view()
}

func (h *Handle) Players() []model.Player {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.leaderboard()
}

func (h *Handle) Responses() []model.Response {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.allResponses()
}

func (h *Handle) ResponsesFor(questionID string) []model.Response {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.responsesFor(questionID)
}

// ApplyOptimistic applies fn to the mirrored game immediately. The change
// stays until reverted or until the next authoritative game state arrives.
func (h *Handle) ApplyOptimistic(fn Mutator) MutationID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return 0
	}
	id := h.mirror.applyOptimistic(fn)
	h.notify()
	return id
}

// Revert drops a pending optimistic change. It reports false when the
// change was already superseded.
func (h *Handle) Revert(id MutationID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return false
	}
	if !h.mirror.revert(id) {
		return false
	}
	h.notify()
	return true
}

// notify must be called with mu held and the handle active.
func (h *Handle) notify() {
	select {
	case h.updates <- struct{}{}:
	default:
	}
}

func (h *Handle) setStatus(s Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return false
	}
	if h.status != s {
		h.status = s
		h.notify()
	}
	return true
}

func (h *Handle) merge(fn func(m *mirror) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return
	}
	if fn(h.mirror) {
		h.notify()
	}
}

func (h *Handle) run() {
	defer h.wg.Done()

	retry := 0
	resync := false
	for {
		err := h.connect(resync)
		if h.ctx.Err() != nil {
			return
		}
		if err == nil {
			// The stream was established at least once; start counting afresh.
			retry = 0
			err = errStreamEnded
		}
		resync = true

		retry++
		if retry > h.opts.MaxRetries {
			h.giveUp(retry-1, err)
			return
		}

		h.setStatus(StatusReconnecting)
		wait := h.opts.backoff(retry)
		h.opts.Telemetry.Log(telemetry.LevelWarn, "sync connection lost", map[string]any{
			"gameId":  h.gameID,
			"retry":   retry,
			"backoff": wait.String(),
			"error":   err.Error(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-h.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect refreshes the mirror when resync is set, subscribes, and consumes
// the stream until it fails. A nil return means the stream was established
// and later ended.
func (h *Handle) connect(resync bool) error {
	if resync {
		snap, err := h.snapshots.Snapshot(h.ctx, h.gameID)
		if err != nil {
			return apperrors.TransientSyncFailure(err)
		}
		h.merge(func(m *mirror) bool {
			m.applySnapshot(snap)
			return true
		})
	}

	started := time.Now()
	stream, err := h.feed.Subscribe(h.ctx, h.gameID)
	if err != nil {
		return apperrors.TransientSyncFailure(err)
	}
	defer stream.Close()

	if !h.setStatus(StatusConnected) {
		return nil
	}
	latency := time.Since(started)
	h.opts.Telemetry.TrackMetric(telemetry.MetricSyncLatency, float64(latency.Milliseconds()), "ms")
	h.opts.Telemetry.Log(telemetry.LevelInfo, "sync connected", map[string]any{"gameId": h.gameID})

	if err := h.consume(stream); err != nil {
		h.opts.Telemetry.Log(telemetry.LevelWarn, "change stream failed", map[string]any{
			"gameId": h.gameID,
			"error":  err.Error(),
		})
	}
	return nil
}

func (h *Handle) consume(stream Stream) error {
	changes := stream.Changes()
	for {
		select {
		case <-h.ctx.Done():
			return nil
		case err := <-stream.Err():
			return apperrors.TransientSyncFailure(err)
		case c, ok := <-changes:
			if !ok {
				return apperrors.TransientSyncFailure(errStreamEnded)
			}
			h.merge(func(m *mirror) bool {
				changed, err := m.applyChange(c)
				if err != nil {
					h.opts.Telemetry.Log(telemetry.LevelError, "failed to apply change", map[string]any{
						"gameId": h.gameID,
						"table":  string(c.Table),
						"error":  err.Error(),
					})
				}
				return changed
			})
		}
	}
}

func (h *Handle) giveUp(retries int, cause error) {
	terminal := apperrors.TerminalSyncFailure(retries, cause)

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return
	}
	h.status = StatusError
	h.err = terminal
	h.notify()

	h.opts.Telemetry.Log(telemetry.LevelCritical, "sync gave up reconnecting", map[string]any{
		"gameId":  h.gameID,
		"retries": retries,
	})
}

// poll re-fetches the game on a fixed interval whenever the change feed is
// not connected, including after the handle has given up reconnecting.
func (h *Handle) poll() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		if h.Status() == StatusConnected {
			continue
		}

		snap, err := h.snapshots.Snapshot(h.ctx, h.gameID)
		if err != nil {
			if h.ctx.Err() == nil {
				h.opts.Telemetry.Log(telemetry.LevelWarn, "poll failed", map[string]any{
					"gameId": h.gameID,
					"error":  err.Error(),
				})
			}
			continue
		}
		h.merge(func(m *mirror) bool {
			m.applySnapshot(snap)
			return true
		})
	}
}
