package services

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ProcessedSet remembers external message ids already applied. It is only a
// fast path: the message table's unique index is the final word.
type ProcessedSet interface {
	Seen(ctx context.Context, tenantID, externalID string) (bool, error)
	Mark(ctx context.Context, tenantID, externalID string) error
}

func processedKey(tenantID, externalID string) string {
	return tenantID + ":" + externalID
}

// MemoryProcessedSet keeps ids in process memory until they expire
type MemoryProcessedSet struct {
	cache *cache.Cache
}

func NewMemoryProcessedSet(ttl time.Duration) *MemoryProcessedSet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryProcessedSet{cache: cache.New(ttl, ttl/4)}
}

func (s *MemoryProcessedSet) Seen(_ context.Context, tenantID, externalID string) (bool, error) {
	_, found := s.cache.Get(processedKey(tenantID, externalID))
	return found, nil
}

func (s *MemoryProcessedSet) Mark(_ context.Context, tenantID, externalID string) error {
	s.cache.SetDefault(processedKey(tenantID, externalID), struct{}{})
	return nil
}

// Len is the number of ids currently remembered
func (s *MemoryProcessedSet) Len() int {
	return s.cache.ItemCount()
}

// RedisProcessedSet shares the ids between every process of the deployment
type RedisProcessedSet struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisProcessedSet(client *redis.Client, ttl time.Duration) *RedisProcessedSet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProcessedSet{client: client, ttl: ttl, prefix: "processed:"}
}

func (s *RedisProcessedSet) Seen(ctx context.Context, tenantID, externalID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+processedKey(tenantID, externalID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisProcessedSet) Mark(ctx context.Context, tenantID, externalID string) error {
	return s.client.SetNX(ctx, s.prefix+processedKey(tenantID, externalID), 1, s.ttl).Err()
}
