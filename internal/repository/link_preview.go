package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
	"just_us/internal/domain"
	"just_us/pkg/logger"
)

const linkPreviewKeyPrefix = "linkpreview:"

type cachedPreview struct {
	Preview  *domain.LinkPreview `json:"preview"`
	Fallback bool                `json:"fallback"`
}

type LinkPreviewCache interface {
	Get(ctx context.Context, url string) (*domain.LinkPreview, bool, error)
	Set(ctx context.Context, url string, preview *domain.LinkPreview, ttl time.Duration) error
}

type linkPreviewCache struct {
	redis *redis.Client
	log   logger.Logger
}

func NewLinkPreviewCache(redis *redis.Client, log logger.Logger) LinkPreviewCache {
	return &linkPreviewCache{redis: redis, log: log}
}

func linkPreviewKey(url string) string {
	sum := blake2b.Sum256([]byte(url))
	return linkPreviewKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *linkPreviewCache) Get(ctx context.Context, url string) (*domain.LinkPreview, bool, error) {
	raw, err := c.redis.Get(ctx, linkPreviewKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.log.Warn("Failed to read link preview cache", "error", err)
		return nil, false, fmt.Errorf("read link preview cache: %w", err)
	}

	var cached cachedPreview
	if err := json.Unmarshal(raw, &cached); err != nil || cached.Preview == nil {
		return nil, false, nil
	}
	cached.Preview.Fallback = cached.Fallback
	return cached.Preview, true, nil
}

func (c *linkPreviewCache) Set(ctx context.Context, url string, preview *domain.LinkPreview, ttl time.Duration) error {
	raw, err := json.Marshal(cachedPreview{Preview: preview, Fallback: preview.Fallback})
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, linkPreviewKey(url), raw, ttl).Err(); err != nil {
		c.log.Warn("Failed to write link preview cache", "error", err)
		return fmt.Errorf("write link preview cache: %w", err)
	}
	return nil
}
