package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const minRecordTTL = time.Second

// RedisPersistence stores the record under a single key so several processes
// on one host (a shell and its helper windows, for example) share one login.
// The key TTL follows the token expiry so Redis drops stale credentials on its own.
//
//	Performance: 1 Redis command per call.
type RedisPersistence struct {
	redis  redis.UniversalClient
	prefix string
	name   string
	now    func() time.Time
}

// NewRedisPersistence returns a backend storing its record at "<prefix>:<name>".
// An empty prefix defaults to "authguard".
func NewRedisPersistence(client redis.UniversalClient, prefix, name string) *RedisPersistence {
	if prefix == "" {
		prefix = "authguard"
	}
	if name == "" {
		name = "default"
	}
	return &RedisPersistence{
		redis:  client,
		prefix: prefix,
		name:   name,
		now:    time.Now,
	}
}

func (r *RedisPersistence) key() string {
	return r.prefix + ":session:" + r.name
}

func (r *RedisPersistence) Load(ctx context.Context) (*Record, error) {
	data, err := r.redis.Get(ctx, r.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return Decode(data)
}

func (r *RedisPersistence) Save(ctx context.Context, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !rec.ExpiresAt.IsZero() {
		ttl = rec.ExpiresAt.Sub(r.now())
		if ttl < minRecordTTL {
			ttl = minRecordTTL
		}
	}

	if err := r.redis.Set(ctx, r.key(), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

func (r *RedisPersistence) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}
