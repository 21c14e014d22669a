package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"rdmquota/internal/domain"
)

// StorageTypeCache memoizes project storage classifications. Redis is the
// shared tier; a local sync.Map keeps lookups cheap and covers deployments
// without Redis (and tests, via a nil client). Classifications are immutable
// after project creation, so staleness is not a concern beyond administrative
// migration, which calls Invalidate.
type StorageTypeCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	local  sync.Map
}

func NewStorageTypeCache(client *redis.Client, ttl time.Duration) *StorageTypeCache {
	return &StorageTypeCache{
		client: client,
		prefix: "quota:storagetype:",
		ttl:    ttl,
	}
}

func (c *StorageTypeCache) key(projectID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, projectID)
}

func (c *StorageTypeCache) Get(ctx context.Context, projectID int64) (domain.StorageType, bool) {
	if c == nil {
		return 0, false
	}

	if value, ok := c.local.Load(projectID); ok {
		return value.(domain.StorageType), true
	}

	if c.client != nil {
		raw, err := c.client.Get(ctx, c.key(projectID)).Result()
		if err == nil {
			if parsed, perr := strconv.Atoi(raw); perr == nil {
				storageType := domain.StorageType(parsed)
				c.local.Store(projectID, storageType)
				return storageType, true
			}
		} else if err != redis.Nil {
			log.Debug().Err(err).Int64("project_id", projectID).Msg("storage type cache read failed")
		}
	}

	return 0, false
}

func (c *StorageTypeCache) Set(ctx context.Context, projectID int64, storageType domain.StorageType) {
	if c == nil {
		return
	}

	c.local.Store(projectID, storageType)

	if c.client != nil {
		err := c.client.Set(ctx, c.key(projectID), int(storageType), c.ttl).Err()
		if err != nil {
			log.Debug().Err(err).Int64("project_id", projectID).Msg("storage type cache write failed")
		}
	}
}

func (c *StorageTypeCache) Invalidate(ctx context.Context, projectID int64) {
	if c == nil {
		return
	}

	c.local.Delete(projectID)

	if c.client != nil {
		if err := c.client.Del(ctx, c.key(projectID)).Err(); err != nil {
			log.Debug().Err(err).Int64("project_id", projectID).Msg("storage type cache invalidate failed")
		}
	}
}
