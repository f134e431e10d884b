package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/stretchr/testify/mock"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/service"
)

const (
	testGameID = "11111111-1111-1111-1111-111111111111"
	testHostID = "22222222-2222-2222-2222-222222222222"
)

type mockGameService struct {
	mock.Mock
}

func (m *mockGameService) CreateSession(ctx context.Context, quizID, hostID string) (*model.Game, error) {
	args := m.Called(ctx, quizID, hostID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameService) Game(ctx context.Context, gameID string) (*model.Game, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameService) Snapshot(ctx context.Context, gameID string) (*model.Snapshot, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Snapshot), args.Error(1)
}

func (m *mockGameService) Join(ctx context.Context, pin, teamName, buzzerSound string) (*model.Player, error) {
	args := m.Called(ctx, pin, teamName, buzzerSound)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Player), args.Error(1)
}

func (m *mockGameService) Start(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	args := m.Called(ctx, gameID, hostID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameService) Advance(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	args := m.Called(ctx, gameID, hostID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameService) Finish(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	args := m.Called(ctx, gameID, hostID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameService) CurrentQuestion(ctx context.Context, gameID string) (*model.Question, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Question), args.Error(1)
}

type mockAnswerSubmitter struct {
	mock.Mock
}

func (m *mockAnswerSubmitter) Submit(ctx context.Context, params service.SubmitAnswerParams) (*service.SubmitResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SubmitResult), args.Error(1)
}

// fakeStream is a change stream driven by the test.
type fakeStream struct {
	changes chan model.Change
	errc    chan error
	once    sync.Once
	closed  chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		changes: make(chan model.Change, 10),
		errc:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (s *fakeStream) Changes() <-chan model.Change { return s.changes }
func (s *fakeStream) Err() <-chan error            { return s.errc }
func (s *fakeStream) Close()                       { s.once.Do(func() { close(s.closed) }) }

// knownGames answers GameLookup for a fixed set of ids.
type knownGames map[string]*model.Game

func (k knownGames) Game(_ context.Context, gameID string) (*model.Game, error) {
	if g, ok := k[gameID]; ok {
		return g, nil
	}
	return nil, apperrors.NotFound("Game")
}

func feedOf(stream *fakeStream) gamesync.Feed {
	return gamesync.FeedFunc(func(ctx context.Context, gameID string) (gamesync.Stream, error) {
		return stream, nil
	})
}

func passthrough(next http.Handler) http.Handler { return next }
