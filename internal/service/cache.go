package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"

	"github.com/mmpotulo28/redirect/internal/repo"
)

// Commands is the slice of the Redis client the record cache needs.
type Commands interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpirationAndRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, key string) error
}

// RecordCache is a read-through Redis cache in front of the redirect table,
// keyed by short code. Every inbound visit hits this path, so records are
// served from Redis and only fall back to Postgres on a miss. A nil Redis
// client degrades to direct repository reads.
type RecordCache struct {
	rdb  Commands
	repo repo.Repository
	ttl  time.Duration
	log  *zerolog.Logger
}

var cacheRetry = retry.Strategy{Attempts: 3, Delay: 100 * time.Millisecond, Backoff: 2}

func NewRecordCache(rdb Commands, repository repo.Repository, ttl time.Duration, log *zerolog.Logger) *RecordCache {
	return &RecordCache{rdb: rdb, repo: repository, ttl: ttl, log: log}
}

func recordKey(code string) string {
	return fmt.Sprintf("redirect:%s", code)
}

// GetByShortCode returns the record with its targeting rules, or (nil, nil)
// when no record exists for the code.
func (c *RecordCache) GetByShortCode(ctx context.Context, code string) (*repo.RedirectEntity, error) {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, recordKey(code))
		if err == nil {
			var record repo.RedirectEntity
			if err := json.Unmarshal([]byte(data), &record); err == nil {
				return &record, nil
			}
			c.log.Warn().Msgf("corrupt cache entry for %s, falling back to DB", code)
		} else if !errors.Is(err, redis.NoMatches) {
			c.log.Warn().Msgf("cache read failed for %s: %v", code, err)
		}
	}

	record, err := c.repo.GetRedirectByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	c.put(ctx, record)

	return record, nil
}

func (c *RecordCache) put(ctx context.Context, record *repo.RedirectEntity) {
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		c.log.Warn().Msgf("failed to marshal record %s for cache: %v", record.ShortCode, err)
		return
	}

	if err := c.rdb.SetWithExpirationAndRetry(ctx, cacheRetry, recordKey(record.ShortCode), data, c.ttl); err != nil {
		c.log.Warn().Msgf("failed to cache record %s: %v", record.ShortCode, err)
	}
}

// Invalidate drops cached entries after a mutation. Short codes can change
// on update, so callers pass both the old and the new code.
func (c *RecordCache) Invalidate(ctx context.Context, codes ...string) {
	if c.rdb == nil {
		return
	}

	for _, code := range codes {
		if code == "" {
			continue
		}
		if err := c.rdb.Del(ctx, recordKey(code)); err != nil {
			c.log.Warn().Msgf("failed to invalidate cache for %s: %v", code, err)
		}
	}
}
