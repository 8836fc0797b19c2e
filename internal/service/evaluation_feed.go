package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/observability"
)

const feedBufferSize = 32

// EvaluationFeed fans recorded evaluations out to live subscribers such as
// grading dashboards. It is an EventPublisher for writes made by this process
// and can relay writes made by other instances from the brokers.
type EvaluationFeed struct {
	mu          sync.RWMutex
	subscribers map[*feedSubscriber]struct{}
	logger      zerolog.Logger
}

type feedSubscriber struct {
	userID uint
	events chan EvaluationRecordedEvent
	once   sync.Once
}

// NewEvaluationFeed constructs an empty feed.
func NewEvaluationFeed(logger zerolog.Logger) *EvaluationFeed {
	return &EvaluationFeed{
		subscribers: make(map[*feedSubscriber]struct{}),
		logger:      logger.With().Str("component", "evaluation_feed").Logger(),
	}
}

// PublishRecorded delivers the event to local subscribers. It never blocks on slow readers.
func (f *EvaluationFeed) PublishRecorded(_ context.Context, event EvaluationRecordedEvent) error {
	if event.Source == "" {
		event.Source = nodeID
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	f.broadcast(event)
	return nil
}

// Subscribe registers a listener. A non-zero userID limits delivery to that
// worker's evaluations. The returned cancel func is idempotent and closes the channel.
func (f *EvaluationFeed) Subscribe(userID uint) (<-chan EvaluationRecordedEvent, func()) {
	sub := &feedSubscriber{
		userID: userID,
		events: make(chan EvaluationRecordedEvent, feedBufferSize),
	}

	f.mu.Lock()
	f.subscribers[sub] = struct{}{}
	f.mu.Unlock()
	observability.StreamSubscribers().Inc()

	cancel := func() {
		sub.once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, sub)
			f.mu.Unlock()
			close(sub.events)
			observability.StreamSubscribers().Dec()
		})
	}
	return sub.events, cancel
}

// Len reports the number of active subscribers.
func (f *EvaluationFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *EvaluationFeed) broadcast(event EvaluationRecordedEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subscribers {
		if sub.userID != 0 && sub.userID != event.UserID {
			continue
		}
		select {
		case sub.events <- event:
		default:
			f.logger.Warn().Uint("evaluation_id", event.EvaluationID).Msg("dropping evaluation event for slow subscriber")
		}
	}
}

// Relay forwards events published by other instances until ctx is done. NATS is
// preferred when both brokers are configured since every event goes to both.
func (f *EvaluationFeed) Relay(ctx context.Context, redisClient *redis.Client, natsConn *nats.Conn, channelBase string) error {
	channel, subject := eventChannels(channelBase)
	if channel == "" {
		return nil
	}

	if natsConn != nil {
		sub, err := natsConn.Subscribe(subject, func(msg *nats.Msg) {
			f.relay(msg.Data)
		})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			_ = sub.Unsubscribe()
		}()
		f.logger.Info().Str("subject", subject).Msg("relaying evaluation events from nats")
		return nil
	}

	if redisClient != nil {
		pubsub := redisClient.Subscribe(ctx, channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		go func() {
			defer pubsub.Close()
			messages := pubsub.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-messages:
					if !ok {
						return
					}
					f.relay([]byte(msg.Payload))
				}
			}
		}()
		f.logger.Info().Str("channel", channel).Msg("relaying evaluation events from redis")
	}

	return nil
}

func (f *EvaluationFeed) relay(payload []byte) {
	var event EvaluationRecordedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		f.logger.Warn().Err(err).Msg("discarding malformed evaluation event")
		return
	}
	if event.Source == nodeID {
		return
	}
	f.broadcast(event)
}
