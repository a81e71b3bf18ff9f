package runtime

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	PresenceSnapshotKeyPrefix = "lookout:presence:"
	presenceSnapshotTTLFactor = 3
)

// SiteCounter reports how many live connections each site currently has.
type SiteCounter interface {
	SiteCounts() map[string]int
	ConnectionCount() int
}

// StartPresenceSnapshots periodically publishes this instance's per-site
// connection counts to a Redis hash. Each instance writes its own key so a
// dashboard can sum presence across the fleet without coordination; the TTL
// lets entries from dead instances age out on their own.
func StartPresenceSnapshots(ctx context.Context, client *redis.Client, counter SiteCounter, interval time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	snapshotKey := PresenceSnapshotKeyPrefix + instanceID
	ttl := interval * presenceSnapshotTTLFactor

	writeSnapshot := func() {
		counts := counter.SiteCounts()
		fields := make(map[string]interface{}, len(counts)+1)
		fields["_total"] = strconv.Itoa(counter.ConnectionCount())
		for siteID, count := range counts {
			fields[siteID] = strconv.Itoa(count)
		}

		pipe := client.TxPipeline()
		pipe.Del(ctx, snapshotKey)
		pipe.HSet(ctx, snapshotKey, fields)
		pipe.Expire(ctx, snapshotKey, ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Error("Failed to publish presence snapshot", "key", snapshotKey, "error", err)
		}
	}

	writeSnapshot()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeSnapshot()
		}
	}
}

func LaunchPresenceSnapshots(parent context.Context, client *redis.Client, counter SiteCounter, interval time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartPresenceSnapshots(ctx, client, counter, interval)
	return cancel
}
