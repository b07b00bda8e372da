package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is the subset of redis.Client the admission lock uses.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Lock is a short per-event lease taken in front of the admission transaction.
// It serializes registration bursts for one event so most requests never
// contend on the database row lock. The database transaction remains the
// capacity invariant's owner; losing or skipping the lease is safe.
type Lock struct {
	Client Client
	TTL    time.Duration
}

func NewLock(client Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Lock{Client: client, TTL: ttl}
}

func key(eventID string) string {
	return "event_admission:" + eventID
}

// Acquire takes the admission lease for one event. The holder tag prevents a
// later holder's lease from being released by a slow predecessor.
func (l *Lock) Acquire(ctx context.Context, eventID, holderID string) (bool, error) {
	return l.Client.SetNX(ctx, key(eventID), holderID, l.TTL).Result()
}

// AcquireWait retries Acquire with a small backoff until the deadline. It
// returns false rather than an error when the lease stays contended: callers
// proceed to the transaction anyway.
func (l *Lock) AcquireWait(ctx context.Context, eventID, holderID string, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.Acquire(ctx, eventID, holderID)
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Release frees the lease if this holder still owns it.
func (l *Lock) Release(ctx context.Context, eventID, holderID string) error {
	val, err := l.Client.Get(ctx, key(eventID)).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == holderID {
		_, err = l.Client.Del(ctx, key(eventID)).Result()
	}
	return err
}
