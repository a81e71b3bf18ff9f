package config

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	settingsKey     = "lookout:config:settings"
	settingsChannel = "lookout:config:updates"
	syncOpTimeout   = 5 * time.Second
)

var (
	syncMu     sync.RWMutex
	syncClient *redis.Client
	syncCtx    context.Context
)

// EnableRedisSynchronization keeps gateway settings consistent across
// instances. On startup the copy stored in Redis wins over the local file;
// when no copy exists yet this instance seeds one. Every later save is
// published on a channel and applied by all subscribers.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Warn("Settings sync disabled: no redis client")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	syncMu.Lock()
	if syncClient != nil {
		syncMu.Unlock()
		return
	}
	syncClient = client
	syncCtx = ctx
	syncMu.Unlock()

	if !adoptStoredSettings(ctx, client) {
		seedStoredSettings(ctx, client)
	}

	go followSettingsUpdates(ctx, client)
}

// adoptStoredSettings pulls the fleet copy and applies it locally. Reports
// whether a stored copy exists, usable or not, so a broken payload is never
// overwritten by a blind seed.
func adoptStoredSettings(ctx context.Context, client *redis.Client) bool {
	opCtx, cancel := context.WithTimeout(ctx, syncOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, settingsKey).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		log.Error("Settings sync: read from redis failed", "error", err)
		return false
	}

	var cfg Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		log.Error("Settings sync: stored settings are not valid JSON", "error", err)
		return true
	}

	if err := applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"}); err != nil {
		log.Error("Settings sync: failed to apply stored settings", "error", err)
	}
	return true
}

// seedStoredSettings publishes the local settings as the fleet copy.
// SetNX tolerates two instances starting at once: whichever seeds first
// wins and the other adopts on its next read.
func seedStoredSettings(ctx context.Context, client *redis.Client) {
	payload, err := json.Marshal(GetConfig())
	if err != nil {
		log.Error("Settings sync: failed to serialize settings", "error", err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, syncOpTimeout)
	defer cancel()

	if err := client.SetNX(opCtx, settingsKey, payload, 0).Err(); err != nil {
		log.Error("Settings sync: failed to seed settings in redis", "error", err)
	}
}

func followSettingsUpdates(ctx context.Context, client *redis.Client) {
	pubsub := client.Subscribe(ctx, settingsChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Settings sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var cfg Config
		if err := json.Unmarshal([]byte(msg.Payload), &cfg); err != nil {
			log.Error("Settings sync: update payload invalid", "error", err)
			continue
		}

		if err := applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"}); err != nil {
			log.Error("Settings sync: failed to apply update", "error", err)
		}
	}
}

// broadcastConfigUpdate stores the new settings and notifies subscribers.
// A no-op when synchronization was never enabled.
func broadcastConfigUpdate(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	syncMu.RLock()
	client := syncClient
	baseCtx := syncCtx
	syncMu.RUnlock()

	if client == nil {
		return nil
	}

	if baseCtx == nil || baseCtx.Err() != nil {
		baseCtx = context.Background()
	}

	opCtx, cancel := context.WithTimeout(baseCtx, syncOpTimeout)
	defer cancel()

	if err := client.Set(opCtx, settingsKey, payload, 0).Err(); err != nil {
		return err
	}
	return client.Publish(opCtx, settingsChannel, payload).Err()
}
