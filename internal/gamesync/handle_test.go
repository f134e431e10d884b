package gamesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/telemetry"
)

const waitFor = 2 * time.Second

func fastOptions() Options {
	return Options{
		PollInterval: 5 * time.Millisecond,
		BackoffBase:  time.Millisecond,
		MaxRetries:   3,
	}
}

func TestOpen_NotFound(t *testing.T) {
	snaps := &fakeSnapshotter{err: apperrors.NotFound("Game")}

	h, err := Open(context.Background(), "missing", snaps, &fakeFeed{}, fastOptions())
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestOpen_SnapshotError(t *testing.T) {
	snaps := &fakeSnapshotter{err: errors.New("connection refused")}

	_, err := Open(context.Background(), "g1", snaps, &fakeFeed{}, fastOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial snapshot")
}

func TestHandle_ConnectsAndMerges(t *testing.T) {
	stream := newFakeStream()
	feed := &fakeFeed{streams: []*fakeStream{stream}}
	rec := telemetry.NewRecorder(zerolog.Nop(), 10)
	opts := fastOptions()
	opts.Telemetry = rec

	h, err := Open(context.Background(), "g1", &fakeSnapshotter{snap: baseSnapshot()}, feed, opts)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "4821", h.Game().Game.Pin)
	require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, time.Millisecond)
	assert.Len(t, rec.Metrics(telemetry.MetricSyncLatency), 1)

	stream.changes <- playerChange(model.OpInsert, model.Player{ID: "p2", GameID: "g1", TeamName: "Bees", Score: 0})
	stream.changes <- playerChange(model.OpInsert, model.Player{ID: "p2", GameID: "g1", TeamName: "Bees", Score: 0})
	stream.changes <- playerChange(model.OpUpdate, model.Player{ID: "p2", GameID: "g1", TeamName: "Bees", Score: 880})
	stream.changes <- responseChange(model.Response{ID: "r1", GameID: "g1", PlayerID: "p2", QuestionID: "q1", SpeedMs: 1200})
	stream.changes <- responseChange(model.Response{ID: "r1", GameID: "g1", PlayerID: "p2", QuestionID: "q1", SpeedMs: 1200})
	stream.changes <- gameChange(model.Game{ID: "g1", Pin: "4821", Status: model.GameStatusActive})

	require.Eventually(t, func() bool { return h.Game().Game.Status == model.GameStatusActive }, waitFor, time.Millisecond)
	players := h.Players()
	require.Len(t, players, 2)
	assert.Equal(t, "Bees", players[0].TeamName)
	assert.Equal(t, 880, players[0].Score)
	assert.Len(t, h.Responses(), 1)
	assert.Len(t, h.ResponsesFor("q1"), 1)
}

func TestHandle_PollsOnlyWhileDisconnected(t *testing.T) {
	t.Run("connected handle does not poll", func(t *testing.T) {
		snaps := &fakeSnapshotter{snap: baseSnapshot()}
		feed := &fakeFeed{streams: []*fakeStream{newFakeStream()}}

		h, err := Open(context.Background(), "g1", snaps, feed, fastOptions())
		require.NoError(t, err)
		defer h.Close()

		require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		before := snaps.callCount()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, before, snaps.callCount())
	})

	t.Run("disconnected handle polls and merges", func(t *testing.T) {
		snaps := &fakeSnapshotter{snap: baseSnapshot()}
		opts := fastOptions()
		opts.BackoffBase = time.Hour

		h, err := Open(context.Background(), "g1", snaps, &fakeFeed{}, opts)
		require.NoError(t, err)
		defer h.Close()

		require.Eventually(t, func() bool { return h.Status() == StatusReconnecting }, waitFor, time.Millisecond)
		snaps.set(func(s *model.Snapshot) {
			s.Players = append(s.Players, model.Player{ID: "p2", GameID: "g1", TeamName: "Bees"})
		})
		require.Eventually(t, func() bool { return len(h.Players()) == 2 }, waitFor, time.Millisecond)
		assert.GreaterOrEqual(t, snaps.callCount(), 2, "initial fetch plus at least one poll")
	})
}

func TestHandle_GivesUpAndKeepsMirror(t *testing.T) {
	snaps := &fakeSnapshotter{snap: baseSnapshot()}
	feed := &fakeFeed{}

	h, err := Open(context.Background(), "g1", snaps, feed, fastOptions())
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return h.Status() == StatusError }, waitFor, time.Millisecond)
	assert.True(t, apperrors.HasCode(h.Err(), apperrors.ErrCodeTerminalSync))
	assert.Equal(t, 4, feed.callCount(), "initial attempt plus three retries")

	view := h.Game()
	require.NotNil(t, view.Game)
	assert.Equal(t, "g1", view.Game.ID)
	assert.Len(t, h.Players(), 1)

	// The store keeps moving; polling carries on after the feed is abandoned.
	snaps.set(func(s *model.Snapshot) {
		s.Game.Status = model.GameStatusActive
		s.Players = append(s.Players, model.Player{ID: "p2", GameID: "g1", TeamName: "Bees"})
	})
	require.Eventually(t, func() bool {
		return h.Game().Game.Status == model.GameStatusActive && len(h.Players()) == 2
	}, waitFor, time.Millisecond)
	assert.Equal(t, StatusError, h.Status())
}

func TestHandle_ReconnectsAfterStreamFailure(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	snaps := &fakeSnapshotter{snap: baseSnapshot()}
	feed := &fakeFeed{streams: []*fakeStream{first, second}}

	h, err := Open(context.Background(), "g1", snaps, feed, fastOptions())
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, time.Millisecond)

	snaps.set(func(s *model.Snapshot) { s.Game.Status = model.GameStatusActive })
	first.errc <- errors.New("connection reset")

	require.Eventually(t, func() bool {
		return feed.callCount() == 2 && h.Status() == StatusConnected
	}, waitFor, time.Millisecond)
	assert.True(t, first.isClosed())
	assert.Equal(t, model.GameStatusActive, h.Game().Game.Status, "resync refreshed the mirror")

	second.changes <- playerChange(model.OpUpdate, model.Player{ID: "p1", GameID: "g1", TeamName: "Owls", Score: 500})
	require.Eventually(t, func() bool { return h.Players()[0].Score == 500 }, waitFor, time.Millisecond)
}

func TestHandle_Optimistic(t *testing.T) {
	stream := newFakeStream()
	h, err := Open(context.Background(), "g1", &fakeSnapshotter{snap: baseSnapshot()}, &fakeFeed{streams: []*fakeStream{stream}}, fastOptions())
	require.NoError(t, err)
	defer h.Close()
	require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, time.Millisecond)

	id := h.ApplyOptimistic(func(g *model.Game) { g.Status = model.GameStatusActive })
	view := h.Game()
	assert.True(t, view.Speculative)
	assert.Equal(t, model.GameStatusActive, view.Game.Status)

	assert.True(t, h.Revert(id))
	assert.Equal(t, model.GameStatusLobby, h.Game().Game.Status)

	h.ApplyOptimistic(func(g *model.Game) { g.Status = model.GameStatusFinished })
	stream.changes <- gameChange(model.Game{ID: "g1", Pin: "4821", Status: model.GameStatusActive})
	require.Eventually(t, func() bool { return !h.Game().Speculative }, waitFor, time.Millisecond)
	assert.Equal(t, model.GameStatusActive, h.Game().Game.Status)
}

func TestHandle_Close(t *testing.T) {
	t.Run("idempotent and stops notifications", func(t *testing.T) {
		stream := newFakeStream()
		h, err := Open(context.Background(), "g1", &fakeSnapshotter{snap: baseSnapshot()}, &fakeFeed{streams: []*fakeStream{stream}}, fastOptions())
		require.NoError(t, err)
		require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, time.Millisecond)

		h.Close()
		h.Close()
		assert.True(t, stream.isClosed())

		for range h.Updates() {
		}

		stream.changes <- playerChange(model.OpInsert, model.Player{ID: "p2", GameID: "g1", TeamName: "Late"})
		time.Sleep(20 * time.Millisecond)
		assert.Len(t, h.Players(), 1)
		assert.Equal(t, MutationID(0), h.ApplyOptimistic(func(g *model.Game) {}))
	})

	t.Run("returns promptly during backoff", func(t *testing.T) {
		opts := fastOptions()
		opts.BackoffBase = time.Hour
		h, err := Open(context.Background(), "g1", &fakeSnapshotter{snap: baseSnapshot()}, &fakeFeed{}, opts)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return h.Status() == StatusReconnecting }, waitFor, time.Millisecond)

		done := make(chan struct{})
		go func() {
			h.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Fatal("Close blocked during backoff")
		}
	})
}

func TestOptions_Backoff(t *testing.T) {
	o := Options{BackoffBase: time.Second}
	assert.Equal(t, 2*time.Second, o.backoff(1))
	assert.Equal(t, 8*time.Second, o.backoff(3))

	d := Options{}.withDefaults()
	assert.Equal(t, DefaultPollInterval, d.PollInterval)
	assert.Equal(t, DefaultMaxRetries, d.MaxRetries)
	assert.NotNil(t, d.Telemetry)
}
