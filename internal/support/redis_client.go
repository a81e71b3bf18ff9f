package support

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

var (
	redisMu     sync.Mutex
	redisClient *redis.Client
)

// GetRedisClient returns the shared client, dialing on first use. The URL
// comes from REDIS_URL and defaults to a local instance. A failed dial is
// not cached, so callers can retry once Redis is reachable.
func GetRedisClient() (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient != nil {
		return redisClient, nil
	}

	client, err := dialRedis(GetEnv("REDIS_URL", "redis://localhost:6379"))
	if err != nil {
		return nil, err
	}

	redisClient = client
	return redisClient, nil
}

func dialRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("support: parse redis url %q: %w", redisURL, err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("support: connect to redis at %s: %w", opt.Addr, err)
	}

	log.Debug("Redis connection established", "addr", opt.Addr)
	return client, nil
}

func CloseRedisClient() error {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient == nil {
		return nil
	}

	err := redisClient.Close()
	redisClient = nil
	return err
}
