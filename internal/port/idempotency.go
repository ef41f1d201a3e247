package port

import "context"

type IdempotencyStore interface {
	// SetIdempotency claims a key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a claim so the request can be retried
	ClearIdempotency(ctx context.Context, key string) error
}
