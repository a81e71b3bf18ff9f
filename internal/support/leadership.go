package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second

	lockRetryDelay = time.Second
	lockOpTimeout  = 5 * time.Second
)

// Renewal and release may only touch the lock while this process still owns
// it, so both go through compare-and-act scripts keyed on the owner token.
var (
	lockRenewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	lockReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunWithLeader runs fn whenever this instance holds the named Redis lock,
// so fleet-wide routines like visit retention execute on one instance at a
// time. The context handed to fn is cancelled as soon as leadership is
// lost. The call blocks until the parent context is done, re-contending
// for the lock between terms.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, fn func(context.Context)) error {
	if fn == nil {
		return errors.New("support: leader function is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock: %w", err)
	}

	token := lockToken()

	for {
		if err := waitForLock(ctx, client, key, token, ttl); err != nil {
			return err
		}

		log.Debug("Leadership acquired", "key", key)
		term, endTerm := context.WithCancel(ctx)
		renewDone := make(chan struct{})
		go keepLockAlive(term, endTerm, client, key, token, ttl, renewDone)

		fn(term)

		endTerm()
		<-renewDone
		releaseLock(client, key, token)
		log.Debug("Leadership released", "key", key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

func waitForLock(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration) error {
	for {
		ok, err := client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Leader lock acquisition failed", "key", key, "error", err)
		} else if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// keepLockAlive extends the TTL at a third of its length and ends the term
// on the first failed extension, so fn stops before another instance can
// win the lock.
func keepLockAlive(term context.Context, endTerm context.CancelFunc, client *redis.Client, key, token string, ttl time.Duration, done chan<- struct{}) {
	defer close(done)

	interval := ttl / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-term.Done():
			return
		case <-ticker.C:
			opCtx, opCancel := context.WithTimeout(context.Background(), lockOpTimeout)
			res, err := lockRenewScript.Run(opCtx, client, []string{key}, token, ttl.Milliseconds()).Result()
			opCancel()

			renewed, _ := res.(int64)
			if err != nil || renewed == 0 {
				log.Warn("Leadership lost", "key", key, "error", err)
				endTerm()
				return
			}
		}
	}
}

func releaseLock(client *redis.Client, key, token string) {
	opCtx, cancel := context.WithTimeout(context.Background(), lockOpTimeout)
	defer cancel()

	if _, err := lockReleaseScript.Run(opCtx, client, []string{key}, token).Result(); err != nil && !errors.Is(err, redis.Nil) {
		log.Warn("Leader lock release failed", "key", key, "error", err)
	}
}

func lockToken() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
