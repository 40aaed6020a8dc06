package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reservation closes the fingerprint race across processes: a submission
// holds the reservation from fingerprint computation until the insert
// commits, so two nodes cannot both pass the uniqueness check.
type Reservation interface {
	// Reserve claims the fingerprint. Returns false if another submission
	// holds it.
	Reserve(ctx context.Context, fingerprint string) (bool, error)
	Release(ctx context.Context, fingerprint string) error
}

// RedisReservation implements Reservation with SET NX and a TTL so crashed
// holders self-expire.
type RedisReservation struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReservation creates a reservation table on Redis.
func NewRedisReservation(addr, password string, db int, ttl time.Duration) *RedisReservation {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisReservation{client: rdb, ttl: ttl}
}

func reservationKey(fingerprint string) string {
	return fmt.Sprintf("intake:reservation:%s", fingerprint)
}

func (r *RedisReservation) Reserve(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := r.client.SetNX(ctx, reservationKey(fingerprint), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve fingerprint: %w", err)
	}
	return ok, nil
}

func (r *RedisReservation) Release(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, reservationKey(fingerprint)).Err(); err != nil {
		return fmt.Errorf("release fingerprint: %w", err)
	}
	return nil
}

// NoopReservation is used in single-process deployments where the store's
// serialized check-then-insert already closes the race.
type NoopReservation struct{}

func (NoopReservation) Reserve(ctx context.Context, fingerprint string) (bool, error) {
	return true, nil
}

func (NoopReservation) Release(ctx context.Context, fingerprint string) error { return nil }
