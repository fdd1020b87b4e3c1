package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// RedisEventPublisher queues domain events for the event worker.
type RedisEventPublisher struct {
	rdb     *redis.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client, timeout time.Duration, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{
		rdb:     rdb,
		timeout: timeout,
		log:     log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish pushes evt onto the event queue in the background. Failures are
// logged and dropped.
func (p *RedisEventPublisher) Publish(evt model.AttemptEvent) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		data, err := json.Marshal(evt)
		if err != nil {
			p.log.Error().Err(err).Str("type", string(evt.Type)).Msg("Marshal event")
			return
		}
		if err := p.rdb.RPush(ctx, config.WorkerKey.AttemptEventsQueue, data).Err(); err != nil {
			p.log.Error().Err(err).
				Str("type", string(evt.Type)).
				Str("attempt_id", evt.AttemptID.String()).
				Msg("Failed to queue event")
		}
	}()
}
