package changefeed

import (
	"sync"

	"github.com/kwizz/kwizz-go/internal/model"
)

// Subscription is one consumer's view of a game's changes. Err yields at most
// one error when the stream ends for any reason other than Close.
type Subscription struct {
	gameID  string
	broker  *Broker
	changes chan model.Change
	errc    chan error
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

func newSubscription(gameID string, broker *Broker) *Subscription {
	return &Subscription{
		gameID:  gameID,
		broker:  broker,
		changes: make(chan model.Change, subscriberBuffer),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (s *Subscription) GameID() string { return s.gameID }

func (s *Subscription) Changes() <-chan model.Change { return s.changes }

func (s *Subscription) Err() <-chan error { return s.errc }

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() {
	s.end(nil)
	if s.broker != nil {
		s.broker.unsubscribe(s)
	}
}

func (s *Subscription) deliver(change model.Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.changes <- change:
		return true
	default:
		return false
	}
}

func (s *Subscription) fail(err error) {
	s.end(err)
}

func (s *Subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.errc <- err
		}
		close(s.done)
	})
}
