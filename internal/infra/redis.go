package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies connectivity. A redis:// or
// rediss:// URL selects a single node; a comma-separated host list selects a
// cluster or sentinel setup through the universal client.
func NewRedisClient(ctx context.Context, url string) (redis.UniversalClient, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	var client redis.UniversalClient
	if strings.Contains(url, "://") {
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: strings.Split(url, ",")})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
