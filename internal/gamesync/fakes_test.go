package gamesync

import (
	"context"
	"errors"
	"sync"

	"github.com/kwizz/kwizz-go/internal/model"
)

type fakeSnapshotter struct {
	mu    sync.Mutex
	snap  *model.Snapshot
	err   error
	calls int
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, _ string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := &model.Snapshot{
		Game:      f.snap.Game.Clone(),
		Players:   append([]model.Player(nil), f.snap.Players...),
		Responses: append([]model.Response(nil), f.snap.Responses...),
	}
	return cp, nil
}

func (f *fakeSnapshotter) set(fn func(s *model.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.snap)
}

func (f *fakeSnapshotter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStream struct {
	changes chan model.Change
	errc    chan error
	once    sync.Once
	closed  chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		changes: make(chan model.Change, 16),
		errc:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (s *fakeStream) Changes() <-chan model.Change { return s.changes }
func (s *fakeStream) Err() <-chan error            { return s.errc }
func (s *fakeStream) Close()                       { s.once.Do(func() { close(s.closed) }) }

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeFeed hands out streams in order; once exhausted every subscribe fails.
type fakeFeed struct {
	mu      sync.Mutex
	streams []*fakeStream
	calls   int
	opened  []*fakeStream
}

var errFeedDown = errors.New("feed down")

func (f *fakeFeed) Subscribe(_ context.Context, _ string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.streams) == 0 {
		return nil, errFeedDown
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func baseSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Game: &model.Game{ID: "g1", Pin: "4821", Status: model.GameStatusLobby},
		Players: []model.Player{
			{ID: "p1", GameID: "g1", TeamName: "Owls", Score: 0},
		},
	}
}

func playerChange(op model.ChangeOp, p model.Player) model.Change {
	c, err := model.NewChange(model.TablePlayers, op, p.GameID, p)
	if err != nil {
		panic(err)
	}
	return c
}

func responseChange(r model.Response) model.Change {
	c, err := model.NewChange(model.TableResponses, model.OpInsert, r.GameID, r)
	if err != nil {
		panic(err)
	}
	return c
}

func gameChange(g model.Game) model.Change {
	c, err := model.NewChange(model.TableGames, model.OpUpdate, g.ID, g)
	if err != nil {
		panic(err)
	}
	return c
}
