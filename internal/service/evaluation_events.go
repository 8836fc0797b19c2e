package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/observability"
)

// EvaluationRecordedEvent is broadcast after an evaluation write commits.
type EvaluationRecordedEvent struct {
	Source       string              `json:"source"`
	EvaluationID uint                `json:"evaluation_id"`
	UserID       uint                `json:"user_id"`
	TemplateID   uint                `json:"template_id"`
	CategoryType models.CategoryType `json:"category_type"`
	Percentage   float64             `json:"percentage"`
	ResultStatus models.ResultStatus `json:"result_status"`
	Created      bool                `json:"created"`
	Revision     int                 `json:"revision"`
	RecordedAt   time.Time           `json:"recorded_at"`
}

// EventPublisher fans evaluation events out to the configured brokers.
type EventPublisher interface {
	PublishRecorded(ctx context.Context, event EvaluationRecordedEvent) error
}

type brokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
}

// nodeID tags events published by this process so relays can skip their own echoes.
var nodeID = uuid.NewString()

// eventChannels derives the redis pub/sub channel and NATS subject from the configured base.
func eventChannels(channelBase string) (string, string) {
	if channelBase == "" {
		return "", ""
	}
	return channelBase + ":evaluations", strings.ReplaceAll(channelBase, ":", ".") + ".evaluations.recorded"
}

// NewEventPublisher publishes to redis pub/sub on "<channel>:evaluations" and NATS on
// "<channel>.evaluations.recorded". Either client may be nil.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	channel, subject := eventChannels(channelBase)

	return &brokerPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "evaluation_events").Logger(),
	}
}

type publisherGroup []EventPublisher

// CombinePublishers delivers every event to each non-nil publisher and joins their errors.
func CombinePublishers(publishers ...EventPublisher) EventPublisher {
	group := make(publisherGroup, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher != nil {
			group = append(group, publisher)
		}
	}
	return group
}

func (g publisherGroup) PublishRecorded(ctx context.Context, event EvaluationRecordedEvent) error {
	var errs []error
	for _, publisher := range g {
		if err := publisher.PublishRecorded(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *brokerPublisher) PublishRecorded(ctx context.Context, event EvaluationRecordedEvent) error {
	if event.Source == "" {
		event.Source = nodeID
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		} else {
			observability.EvaluationEventsPublished().WithLabelValues("redis").Inc()
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			errs = append(errs, err)
		} else {
			observability.EvaluationEventsPublished().WithLabelValues("nats").Inc()
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	p.logger.Debug().Uint("evaluation_id", event.EvaluationID).Int("revision", event.Revision).Msg("evaluation event published")
	return nil
}
