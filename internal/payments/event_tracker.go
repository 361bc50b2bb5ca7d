package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/onboardpro/pkg/logging"
)

// EventTracker remembers which provider events were already handled so a
// redelivery is acknowledged without running the transition again.
type EventTracker interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkHandled(ctx context.Context, eventID string) error
}

// RedisEventTracker stores handled event ids in Redis with a TTL.
type RedisEventTracker struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logging.Logger
}

// NewRedisEventTracker returns nil when no client is given, which disables dedupe.
func NewRedisEventTracker(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisEventTracker {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisEventTracker{
		redis:  client,
		ttl:    ttl,
		prefix: "onboardpro:stripe:event:",
		logger: logger,
	}
}

func (t *RedisEventTracker) key(eventID string) string {
	return t.prefix + eventID
}

// Seen reports whether eventID was marked within the TTL.
func (t *RedisEventTracker) Seen(ctx context.Context, eventID string) (bool, error) {
	ctx, span := stripeTracer.Start(ctx, "webhook.dedupe.check")
	defer span.End()
	span.SetAttributes(attribute.String("onboardpro.event_id", eventID))

	n, err := t.redis.Exists(ctx, t.key(eventID)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("payments: check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// MarkHandled records eventID. Marking twice is harmless.
func (t *RedisEventTracker) MarkHandled(ctx context.Context, eventID string) error {
	ctx, span := stripeTracer.Start(ctx, "webhook.dedupe.mark")
	defer span.End()
	span.SetAttributes(attribute.String("onboardpro.event_id", eventID))

	created, err := t.redis.SetNX(ctx, t.key(eventID), time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("payments: mark event %s: %w", eventID, err)
	}
	if !created {
		t.logger.Debug("stripe event already marked", "event_id", eventID)
	}
	return nil
}
