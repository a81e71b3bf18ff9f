package runtime

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	InstanceHeartbeatKeyPrefix = "lookout:instance:"
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultHeartbeatTTL        = 30 * time.Second
)

var instanceID = generateInstanceID()

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}

// InstanceID identifies this process in the shared Redis namespace. Presence
// snapshots and heartbeat keys both derive from it.
func InstanceID() string {
	return instanceID
}

// StartInstanceHeartbeat marks this instance alive under a TTL'd key whose
// value is the time of the last beat, so operators can see at a glance how
// fresh each entry is. Loops until the context is done.
func StartInstanceHeartbeat(ctx context.Context, client *redis.Client, interval, ttl time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	heartbeatKey := InstanceHeartbeatKeyPrefix + instanceID

	beat := func() {
		stamp := time.Now().UTC().Format(time.RFC3339)
		if err := client.SetEx(ctx, heartbeatKey, stamp, ttl).Err(); err != nil {
			log.Error("Instance heartbeat write failed", "key", heartbeatKey, "error", err)
		}
	}

	beat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

func LaunchInstanceHeartbeat(parent context.Context, client *redis.Client) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartInstanceHeartbeat(ctx, client, DefaultHeartbeatInterval, DefaultHeartbeatTTL)
	return cancel
}

// CountActiveInstances walks the heartbeat namespace with SCAN so a large
// fleet does not block Redis the way KEYS would.
func CountActiveInstances(ctx context.Context, client *redis.Client) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	count := 0
	iter := client.Scan(ctx, 0, InstanceHeartbeatKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
