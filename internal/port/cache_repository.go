package port

import (
	"context"

	"github.com/medilink/pharmacy/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a claimed key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetMedicine returns the cached record, nil on miss
	GetMedicine(ctx context.Context, id string) (*domain.Medicine, error)

	// PutMedicine caches a record for read-through lookups
	PutMedicine(ctx context.Context, m domain.Medicine) error

	// InvalidateMedicine drops the cached record after a stock mutation
	InvalidateMedicine(ctx context.Context, id string) error
}
