package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medilink/pharmacy/internal/core/domain"
)

const (
	medicineKeyPrefix    = "medicine:"
	idempotencyKeyPrefix = "idempotency:"
	medicineKeyTTL       = 5 * time.Minute
	idempotencyKeyTTL    = 24 * time.Hour
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	data, err := r.client.Get(ctx, medicineKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached medicine: %w", err)
	}

	var med domain.Medicine
	if err := json.Unmarshal(data, &med); err != nil {
		// A corrupt entry behaves like a miss; the durable store is authoritative.
		return nil, nil
	}

	return &med, nil
}

func (r *RedisAdapter) PutMedicine(ctx context.Context, med domain.Medicine) error {
	data, err := json.Marshal(med)
	if err != nil {
		return fmt.Errorf("marshal medicine: %w", err)
	}

	return r.client.Set(ctx, medicineKeyPrefix+med.ID, data, medicineKeyTTL).Err()
}

func (r *RedisAdapter) InvalidateMedicine(ctx context.Context, id string) error {
	return r.client.Del(ctx, medicineKeyPrefix+id).Err()
}
