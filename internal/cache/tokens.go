package cache

import (
	"context"
	"sync"
	"time"
)

const processedTokenPrefix = "newsletter:processed:"

// RedisTokenSet marks confirmation tokens as processed across instances.
type RedisTokenSet struct {
	redis *Redis
}

func NewRedisTokenSet(r *Redis) *RedisTokenSet {
	return &RedisTokenSet{redis: r}
}

func (s *RedisTokenSet) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, processedTokenPrefix+token, "1", ttl)
}

func (s *RedisTokenSet) Release(ctx context.Context, token string) error {
	return s.redis.Del(ctx, processedTokenPrefix+token)
}

// MemoryTokenSet is the single-process variant. Entries expire lazily.
type MemoryTokenSet struct {
	mu      sync.Mutex
	expires map[string]time.Time

	Now func() time.Time
}

func NewMemoryTokenSet() *MemoryTokenSet {
	return &MemoryTokenSet{
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

func (s *MemoryTokenSet) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if exp, ok := s.expires[token]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[token] = now.Add(ttl)
	if len(s.expires) > 1024 {
		s.sweep(now)
	}
	return true, nil
}

func (s *MemoryTokenSet) Release(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, token)
	return nil
}

// Len reports how many unexpired tokens are held.
func (s *MemoryTokenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.Now())
	return len(s.expires)
}

func (s *MemoryTokenSet) sweep(now time.Time) {
	for tok, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, tok)
		}
	}
}
