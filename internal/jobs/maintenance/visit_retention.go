package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"lookout/internal/config"
	"lookout/internal/database"
	"lookout/internal/support"
)

const (
	envRetentionInterval    = "VISIT_RETENTION_INTERVAL"
	defaultRetentionMinutes = 60
	visitRetentionLockKey   = "lookout:leader:visit_retention"
)

// StartVisitRetentionRoutine prunes stale unblocked visit records. The loop
// only runs on the instance holding the leader lock so a fleet does not hammer
// the table with concurrent deletes.
func StartVisitRetentionRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, visitRetentionLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runVisitRetentionLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Visit retention routine stopped", "error", err)
	}
}

func runVisitRetentionLoop(ctx context.Context) {
	interval := resolveRetentionInterval()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runVisitRetention(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runVisitRetention(ctx)
		}
	}
}

func resolveRetentionInterval() time.Duration {
	if raw := support.GetEnv(envRetentionInterval, ""); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			return parsed
		}
		log.Warn("invalid retention interval override", "value", raw)
	}
	return time.Duration(defaultRetentionMinutes) * time.Minute
}

func runVisitRetention(ctx context.Context) {
	retention := config.GetConfig().VisitRetention()
	if retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-retention)
	pruned, err := database.PruneStaleVisits(ctx, cutoff)
	if err != nil {
		log.Error("Failed to prune stale visits", "error", err)
		return
	}
	if pruned > 0 {
		log.Info("Pruned stale visits", "count", pruned, "cutoff", cutoff)
	}
}
