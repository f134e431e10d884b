// Package changefeed carries row changes from Postgres to per-game
// subscribers over Redis pub/sub.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/model"
	redisclient "github.com/kwizz/kwizz-go/internal/redis"
)

const subscriberBuffer = 100

var (
	ErrBrokerClosed = errors.New("change broker closed")
	ErrSlowConsumer = errors.New("subscriber buffer full")
)

// Broker multiplexes one Redis subscription per game across local
// subscribers.
type Broker struct {
	rdb    goredis.UniversalClient
	games  map[string]*gameTopic
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

type gameTopic struct {
	pubsub  *goredis.PubSub
	subs    map[*Subscription]struct{}
	closing atomic.Bool
}

func NewBroker(rdb goredis.UniversalClient) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		rdb:    rdb,
		games:  make(map[string]*gameTopic),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish sends a change to every subscriber of its game.
func (b *Broker) Publish(ctx context.Context, change model.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.rdb.Publish(ctx, redisclient.GameChannel(change.GameID), data).Err()
}

// Subscribe returns a subscription to one game's changes. It returns only
// once the Redis subscription is confirmed.
func (b *Broker) Subscribe(ctx context.Context, gameID string) (*Subscription, error) {
	sub := newSubscription(gameID, b)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	topic, ok := b.games[gameID]
	if !ok {
		channel := redisclient.GameChannel(gameID)
		pubsub := b.rdb.Subscribe(b.ctx, channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
		topic = &gameTopic{pubsub: pubsub, subs: make(map[*Subscription]struct{})}
		b.games[gameID] = topic
		go b.pump(gameID, topic)

		log.Debug().
			Str("gameId", gameID).
			Str("channel", channel).
			Msg("redis pubsub subscribed")
	}
	topic.subs[sub] = struct{}{}

	log.Info().
		Str("gameId", gameID).
		Int("subscriberCount", len(topic.subs)).
		Msg("change subscriber added")

	return sub, nil
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, ok := b.games[sub.gameID]
	if !ok {
		return
	}
	if _, ok := topic.subs[sub]; !ok {
		return
	}
	delete(topic.subs, sub)
	if len(topic.subs) == 0 {
		delete(b.games, sub.gameID)
		topic.closing.Store(true)
		_ = topic.pubsub.Close()
	}

	log.Info().
		Str("gameId", sub.gameID).
		Int("subscriberCount", len(topic.subs)).
		Msg("change subscriber removed")
}

func (b *Broker) pump(gameID string, topic *gameTopic) {
	for {
		msg, err := topic.pubsub.Receive(b.ctx)
		if err != nil {
			if b.ctx.Err() == nil && !topic.closing.Load() {
				log.Warn().Err(err).Str("gameId", gameID).Msg("redis pubsub failed")
			}
			b.failTopic(gameID, topic, err)
			return
		}

		m, ok := msg.(*goredis.Message)
		if !ok {
			continue
		}

		var change model.Change
		if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("failed to unmarshal change")
			continue
		}
		b.broadcast(gameID, topic, change)
	}
}

func (b *Broker) broadcast(gameID string, topic *gameTopic, change model.Change) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(topic.subs))
	for sub := range topic.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.deliver(change) {
			log.Warn().
				Str("gameId", gameID).
				Msg("subscriber buffer full, dropping subscriber")
			sub.fail(ErrSlowConsumer)
			b.unsubscribe(sub)
		}
	}
}

// failTopic ends every subscription of a topic whose Redis stream broke.
func (b *Broker) failTopic(gameID string, topic *gameTopic, err error) {
	b.mu.Lock()
	if current, ok := b.games[gameID]; ok && current == topic {
		delete(b.games, gameID)
	}
	subs := topic.subs
	topic.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	_ = topic.pubsub.Close()
	if b.ctx.Err() != nil {
		err = ErrBrokerClosed
	}
	for sub := range subs {
		sub.fail(err)
	}
}

// Reset ends every subscription with err. Subscribers are expected to
// refetch state and subscribe again.
func (b *Broker) Reset(err error) {
	b.mu.Lock()
	topics := make(map[string]*gameTopic, len(b.games))
	for gameID, topic := range b.games {
		topics[gameID] = topic
	}
	b.mu.Unlock()

	for gameID, topic := range topics {
		topic.closing.Store(true)
		b.failTopic(gameID, topic, err)
	}
	if len(topics) > 0 {
		log.Warn().Err(err).Int("games", len(topics)).Msg("change subscribers reset")
	}
}

// SubscriberCount returns the number of local subscribers to a game.
func (b *Broker) SubscriberCount(gameID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic, ok := b.games[gameID]; ok {
		return len(topic.subs)
	}
	return 0
}

// Close ends every subscription with ErrBrokerClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	topics := make([]*gameTopic, 0, len(b.games))
	for _, topic := range b.games {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	b.cancel()
	for _, topic := range topics {
		_ = topic.pubsub.Close()
	}
}
