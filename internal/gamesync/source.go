package gamesync

import (
	"context"

	"github.com/kwizz/kwizz-go/internal/model"
)

// Snapshotter fetches the full current state of a game. It returns a
// NOT_FOUND AppError when the game does not exist.
type Snapshotter interface {
	Snapshot(ctx context.Context, gameID string) (*model.Snapshot, error)
}

type SnapshotFunc func(ctx context.Context, gameID string) (*model.Snapshot, error)

func (f SnapshotFunc) Snapshot(ctx context.Context, gameID string) (*model.Snapshot, error) {
	return f(ctx, gameID)
}

// Stream is an established change subscription. Err yields an error when the
// transport drops the stream; Close releases it.
type Stream interface {
	Changes() <-chan model.Change
	Err() <-chan error
	Close()
}

// Feed opens change subscriptions filtered to one game.
type Feed interface {
	Subscribe(ctx context.Context, gameID string) (Stream, error)
}

type FeedFunc func(ctx context.Context, gameID string) (Stream, error)

func (f FeedFunc) Subscribe(ctx context.Context, gameID string) (Stream, error) {
	return f(ctx, gameID)
}
