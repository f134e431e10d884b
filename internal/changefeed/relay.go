package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/config"
	"github.com/kwizz/kwizz-go/internal/model"
)

const listenerPingInterval = 90 * time.Second

// Channel is the NOTIFY channel the change triggers publish on.
const Channel = "kwizz_changes"

// ErrChangesMissed ends live subscriptions after the listener reconnected,
// since notifications sent while it was down are gone.
var ErrChangesMissed = errors.New("change listener reconnected, changes may have been missed")

// Listener is the subset of *pq.Listener the relay uses.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, change model.Change) error
	// Reset ends every live subscription with err so subscribers refetch.
	Reset(err error)
}

// Relay forwards Postgres change notifications to the broker.
type Relay struct {
	listener  Listener
	publisher Publisher
	channel   string
}

func NewRelay(listener Listener, publisher Publisher, channel string) *Relay {
	return &Relay{listener: listener, publisher: publisher, channel: channel}
}

// NewPostgresListener opens a reconnecting LISTEN connection.
func NewPostgresListener(databaseURL string) *pq.Listener {
	return pq.NewListener(databaseURL, config.ListenerMinReconnect, config.ListenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnected:
				log.Info().Msg("change listener connected")
			case pq.ListenerEventDisconnected:
				log.Warn().Err(err).Msg("change listener disconnected")
			case pq.ListenerEventReconnected:
				log.Info().Msg("change listener reconnected")
			case pq.ListenerEventConnectionAttemptFailed:
				log.Warn().Err(err).Msg("change listener connection attempt failed")
			}
		})
}

// Run relays notifications until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.listener.Listen(r.channel); err != nil {
		return fmt.Errorf("listen %s: %w", r.channel, err)
	}
	defer r.listener.Close()

	log.Info().Str("channel", r.channel).Msg("change relay started")

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	notifications := r.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("change relay stopped")
			return nil

		case n, ok := <-notifications:
			if !ok {
				return fmt.Errorf("listener closed")
			}
			if n == nil {
				log.Warn().Msg("change listener reconnected, resetting subscribers")
				r.publisher.Reset(ErrChangesMissed)
				continue
			}
			r.forward(ctx, n)

		case <-ping.C:
			if err := r.listener.Ping(); err != nil {
				log.Warn().Err(err).Msg("change listener ping failed")
			}
		}
	}
}

func (r *Relay) forward(ctx context.Context, n *pq.Notification) {
	var change model.Change
	if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
		log.Error().Err(err).Str("channel", n.Channel).Msg("failed to decode change notification")
		return
	}
	if change.GameID == "" {
		log.Warn().Str("table", string(change.Table)).Msg("change without game id")
		return
	}
	if change.ID == "" {
		change.ID = uuid.NewString()
	}

	if err := r.publisher.Publish(ctx, change); err != nil {
		log.Error().Err(err).
			Str("gameId", change.GameID).
			Str("table", string(change.Table)).
			Msg("failed to publish change")
		return
	}

	log.Debug().
		Str("gameId", change.GameID).
		Str("table", string(change.Table)).
		Str("op", string(change.Op)).
		Msg("change relayed")
}
