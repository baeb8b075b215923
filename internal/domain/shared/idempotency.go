package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers delivered webhook event ids so a redelivery is
// handled once.
type IdempotencyStore interface {
	// MarkProcessed returns true if eventID was not seen within its TTL.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// Forget removes eventID so the event can be retried after a failure.
	Forget(ctx context.Context, eventID string) error

	Close() error
}

// DefaultIdempotencyTTL matches how long Stripe keeps retrying a delivery
const DefaultIdempotencyTTL = 24 * time.Hour
