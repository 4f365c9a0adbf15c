// Copyright 2026 The Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package assignstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCmdable abstracts the minimal surface this package needs from a
// Redis client, the same narrowing the teacher applies with its
// RedisEvaler interface (there it narrows to Eval; here to Get/Set).
// Implementations may wrap github.com/redis/go-redis/v9 or any equivalent.
type RedisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// RedisStore is a Store backed by Redis SET key val EX ttl / GET key,
// grounded on the teacher's GoRedisEvaler (persistence/clients.go): a thin
// wrapper that forwards to a real *redis.Client and surfaces a narrow
// interface for testability.
type RedisStore struct {
	client RedisCmdable
}

// NewRedisStore wraps an already-configured RedisCmdable.
func NewRedisStore(client RedisCmdable) *RedisStore {
	return &RedisStore{client: client}
}

// NewGoRedisStore dials a real github.com/redis/go-redis/v9 client at addr,
// mirroring the teacher's NewGoRedisEvaler constructor.
func NewGoRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func redisKey(key Key) string {
	return fmt.Sprintf("abtest:assign:%s:%s", key.EndpointName, key.UserID)
}

func (r *RedisStore) Get(key Key, now time.Time) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := r.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("assignstore redis get(%s): %w", redisKey(key), err)
	}
	return val, true, nil
}

func (r *RedisStore) Put(key Key, variantName string, now time.Time, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, redisKey(key), variantName, ttl).Err(); err != nil {
		return fmt.Errorf("assignstore redis set(%s): %w", redisKey(key), err)
	}
	return nil
}
