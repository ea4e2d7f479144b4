package datastore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps each logical hash in a native Redis hash named
// "<table>:<key>".
type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to a Redis server and returns a Store backed
// by it.
func NewRedisStore(ctx context.Context, addr string) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &redisStore{client: client}, nil
}

func redisKey(table, key string) string {
	return table + ":" + key
}

// wrapErr maps driver failures onto the store taxonomy so callers can
// check errors.Is(err, ErrStoreUnavailable).
func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func (s *redisStore) HSet(ctx context.Context, table, key, field, value string) error {
	if err := s.client.HSet(ctx, redisKey(table, key), field, value).Err(); err != nil {
		return wrapErr("hset", err)
	}
	return nil
}

func (s *redisStore) HGet(ctx context.Context, table, key, field string) (string, bool, error) {
	value, err := s.client.HGet(ctx, redisKey(table, key), field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("hget", err)
	}
	return value, true, nil
}

func (s *redisStore) HGetAll(ctx context.Context, table, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(table, key)).Result()
	if err != nil {
		return nil, wrapErr("hgetall", err)
	}
	return fields, nil
}

func (s *redisStore) HDel(ctx context.Context, table, key, field string) error {
	if err := s.client.HDel(ctx, redisKey(table, key), field).Err(); err != nil {
		return wrapErr("hdel", err)
	}
	return nil
}

func (s *redisStore) HKeys(ctx context.Context, table, key string) ([]string, error) {
	fields, err := s.client.HKeys(ctx, redisKey(table, key)).Result()
	if err != nil {
		return nil, wrapErr("hkeys", err)
	}
	return fields, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
