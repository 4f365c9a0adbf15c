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
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fakeRedisClient is a minimal RedisCmdable fake, in the spirit of the
// teacher's LoggingRedisEvaler demo adapter: no network, just enough
// behavior to exercise RedisStore's Get/Put wiring.
type fakeRedisClient struct {
	store   map[string]string
	getErr  error
	setErr  error
	lastSet struct {
		key   string
		value interface{}
		ttl   time.Duration
	}
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{store: map[string]string{}}
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value, "ex", ttl)
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	f.lastSet.key, f.lastSet.value, f.lastSet.ttl = key, value, ttl
	if s, ok := value.(string); ok {
		f.store[key] = s
	}
	cmd.SetVal("OK")
	return cmd
}

func TestRedisStore_PutThenGet(t *testing.T) {
	c := newFakeRedisClient()
	s := NewRedisStore(c)
	k := Key{UserID: "u1", EndpointName: "e1"}
	now := time.Now()

	if err := s.Put(k, "ev1", now, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	variant, ok, err := s.Get(k, now)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || variant != "ev1" {
		t.Fatalf("Get = (%q, %v), want (ev1, true)", variant, ok)
	}
	if c.lastSet.ttl != time.Hour {
		t.Fatalf("ttl passed to Set = %v, want 1h", c.lastSet.ttl)
	}
}

func TestRedisStore_Get_Miss(t *testing.T) {
	c := newFakeRedisClient()
	s := NewRedisStore(c)
	_, ok, err := s.Get(Key{UserID: "u1", EndpointName: "e1"}, time.Now())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on cache miss")
	}
}

func TestRedisStore_Get_WrapsClientError(t *testing.T) {
	c := newFakeRedisClient()
	c.getErr = errors.New("connection refused")
	s := NewRedisStore(c)
	_, _, err := s.Get(Key{UserID: "u1", EndpointName: "e1"}, time.Now())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestRedisStore_Put_WrapsClientError(t *testing.T) {
	c := newFakeRedisClient()
	c.setErr = errors.New("connection refused")
	s := NewRedisStore(c)
	if err := s.Put(Key{UserID: "u1", EndpointName: "e1"}, "ev1", time.Now(), time.Hour); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestRedisKey_NamespacesByEndpointAndUser(t *testing.T) {
	a := redisKey(Key{UserID: "u1", EndpointName: "e1"})
	b := redisKey(Key{UserID: "u1", EndpointName: "e2"})
	if a == b {
		t.Fatal("keys for distinct endpoints must not collide")
	}
}
