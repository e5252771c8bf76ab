// Package rediscache is an optional redis-backed exact-match tier for the
// snapshot cache, for deployments where several instances should share
// their short-TTL snapshots.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"geocontext/internal/cache/snapcache"
	"geocontext/internal/snapshot"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &Store{rdb: rdb, ttl: ttl}
}

func redisKey(key snapcache.Key) string {
	return fmt.Sprintf("geoctx:snap:%d:%d:%d", key.LatE6, key.LonE6, key.Radius)
}

// Get returns a cached snapshot, treating every redis failure as a miss.
func (s *Store) Get(ctx context.Context, key snapcache.Key) (*snapshot.ContextSnapshot, bool) {
	if s == nil || s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("rediscache: get failed: %v", err)
		}
		return nil, false
	}
	var snap snapshot.ContextSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Printf("rediscache: corrupt entry dropped: %v", err)
		_ = s.rdb.Del(ctx, redisKey(key)).Err()
		return nil, false
	}
	return &snap, true
}

// Set stores a snapshot under the exact key. Failures are logged and
// swallowed; the cache is an optimization, never a dependency.
func (s *Store) Set(ctx context.Context, key snapcache.Key, snap *snapshot.ContextSnapshot) {
	if s == nil || s.rdb == nil || snap == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		log.Printf("rediscache: marshal failed: %v", err)
		return
	}
	if err := s.rdb.Set(ctx, redisKey(key), raw, s.ttl).Err(); err != nil {
		log.Printf("rediscache: set failed: %v", err)
	}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
