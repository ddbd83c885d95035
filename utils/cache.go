package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/bbsboard/models"
)

const listCacheOpTimeout = 2 * time.Second

var errStaleGeneration = errors.New("list cache generation changed")

// ListCache keeps per-category board lists in Redis.
// Every method degrades to a miss / no-op when Redis misbehaves.
// Each category has a generation counter bumped by Invalidate; Set only
// stores a list read under the generation that is still current.
type ListCache struct {
	rc     *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewListCache wraps a Redis client. A nil client yields a cache that always misses.
func NewListCache(rc *redis.Client, ttl time.Duration, logger *zap.Logger) *ListCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListCache{rc: rc, ttl: ttl, logger: logger}
}

func listCacheKey(category int) string {
	return fmt.Sprintf("cache:boards:list:cat=%d", category)
}

func listGenerationKey(category int) string {
	return fmt.Sprintf("cache:boards:gen:cat=%d", category)
}

// Get returns the cached list for category.
func (c *ListCache) Get(ctx context.Context, category int) ([]models.Board, bool) {
	if c == nil || c.rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, listCacheOpTimeout)
	defer cancel()

	b, err := c.rc.Get(ctx, listCacheKey(category)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("list cache get failed", zap.Int("category", category), zap.Error(err))
		}
		return nil, false
	}
	var boards []models.Board
	if err := json.Unmarshal(b, &boards); err != nil {
		c.logger.Warn("list cache entry corrupt", zap.Int("category", category), zap.Error(err))
		return nil, false
	}
	// WriterNo is not serialized; the writer reference carries it.
	for i := range boards {
		boards[i].WriterNo = boards[i].Writer.No
	}
	return boards, true
}

// Generation returns the current generation of category. Read it before
// loading the list from the store and hand it to Set.
func (c *ListCache) Generation(ctx context.Context, category int) (int64, bool) {
	if c == nil || c.rc == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, listCacheOpTimeout)
	defer cancel()

	gen, err := c.rc.Get(ctx, listGenerationKey(category)).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		c.logger.Debug("list cache generation failed", zap.Int("category", category), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// Set stores the list for category unless the category was invalidated
// since generation was read.
func (c *ListCache) Set(ctx context.Context, category int, generation int64, boards []models.Board) {
	if c == nil || c.rc == nil {
		return
	}
	b, err := json.Marshal(boards)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, listCacheOpTimeout)
	defer cancel()

	genKey := listGenerationKey(category)
	err = c.rc.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, listCacheKey(category), b, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("list cache set skipped, list changed meanwhile", zap.Int("category", category))
	default:
		c.logger.Warn("list cache set failed", zap.Int("category", category), zap.Error(err))
	}
}

// Invalidate bumps the generation of the given categories and drops their cached lists.
func (c *ListCache) Invalidate(ctx context.Context, categories ...int) {
	if c == nil || c.rc == nil || len(categories) == 0 {
		return
	}
	categories = Unique(categories)
	ctx, cancel := context.WithTimeout(ctx, listCacheOpTimeout)
	defer cancel()

	_, err := c.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, cat := range categories {
			pipe.Incr(ctx, listGenerationKey(cat))
			pipe.Del(ctx, listCacheKey(cat))
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("list cache invalidate failed", zap.Ints("categories", categories), zap.Error(err))
	}
}
