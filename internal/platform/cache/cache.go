package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service is a thin JSON cache over redis. A nil Service (redis not
// configured) is valid and behaves as a permanent miss, so callers never need
// to branch on whether caching is enabled.
type Service struct {
	client *redis.Client
	ttl    time.Duration
}

func Connect(ctx context.Context, addr string, ttl time.Duration) (*Service, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Service{client: client, ttl: ttl}, nil
}

func (s *Service) Get(ctx context.Context, key string, out any) bool {
	if s == nil {
		return false
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *Service) Set(ctx context.Context, key string, value any) {
	if s == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.client.Set(ctx, key, raw, s.ttl)
}

func (s *Service) Invalidate(ctx context.Context, keys ...string) {
	if s == nil || len(keys) == 0 {
		return
	}
	s.client.Del(ctx, keys...)
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	_ = s.client.Close()
}
