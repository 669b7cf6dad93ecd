// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package throttle

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "login_throttle:"
	fieldFailures      = "failures"
	fieldLockedUntilMs = "locked_until_ms"
)

// RedisStore keeps entries in Redis so every instance sees the same counts.
// Each identifier is a hash; a lockout entry expires with the lockout.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	values, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Entry{}, err
	}
	if len(values) == 0 {
		return Entry{}, nil
	}

	var entry Entry
	if raw, ok := values[fieldFailures]; ok {
		if entry.Failures, err = strconv.Atoi(raw); err != nil {
			return Entry{}, err
		}
	}
	if raw, ok := values[fieldLockedUntilMs]; ok && raw != "0" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Entry{}, err
		}
		entry.LockedUntil = time.UnixMilli(ms)
	}
	return entry, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	var lockedUntil int64
	if !entry.LockedUntil.IsZero() {
		lockedUntil = entry.LockedUntil.UnixMilli()
	}

	k := redisKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldFailures, entry.Failures, fieldLockedUntilMs, lockedUntil)
		if ttl > 0 {
			pipe.Expire(ctx, k, ttl)
		} else {
			pipe.Persist(ctx, k)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKey(key)).Err()
}
