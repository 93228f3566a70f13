package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"jupyter-proxy-apps/internal/model"
)

const latestCommentsKey = "board:comments:latest"

// CommentCache keeps the newest comments page in redis.
type CommentCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewCommentCache(client *redisv9.Client, ttl time.Duration) *CommentCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CommentCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *CommentCache) GetLatest(ctx context.Context) ([]model.Comment, bool, error) {
	raw, err := c.client.Get(ctx, latestCommentsKey).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get comments failed: %w", err)
	}

	var comments []model.Comment
	if err := json.Unmarshal([]byte(raw), &comments); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached comments failed: %w", err)
	}
	return comments, true, nil
}

func (c *CommentCache) SetLatest(ctx context.Context, comments []model.Comment) error {
	payload, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("marshal comments cache failed: %w", err)
	}
	if err := c.client.Set(ctx, latestCommentsKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set comments failed: %w", err)
	}
	return nil
}

func (c *CommentCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, latestCommentsKey).Err(); err != nil {
		return fmt.Errorf("redis delete comments failed: %w", err)
	}
	return nil
}
