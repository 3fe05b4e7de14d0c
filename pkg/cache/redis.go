package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/LAG-4/cafefinder/internal/utils"
)

// RedisStore keeps entries in a shared redis instance so multiple engine
// processes see the same cached aggregations. Every failure is logged and
// swallowed; the layered Cache then serves from the local store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: "offers:v1:"}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			utils.Log.WithField("key", key).Debugf("redis get failed: %v", err)
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		utils.Log.WithField("key", key).Debugf("redis entry corrupt: %v", err)
		s.client.Del(ctx, s.prefix+key)
		return Entry{}, false
	}
	return e, true
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		utils.Log.WithField("key", key).Debugf("redis set failed: %v", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		utils.Log.WithField("key", key).Debugf("redis delete failed: %v", err)
	}
}

func (s *RedisStore) Clear(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		s.client.Del(ctx, iter.Val())
	}
}

func (s *RedisStore) Len(ctx context.Context) int {
	var n int
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}
