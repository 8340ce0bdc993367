// Package joblock keeps two runs of the same job from writing into one job
// directory at the same time. The lock is a Redis key holding a random
// token; it expires on its own if the holder dies.
package joblock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	lockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpapi_job_lock_conflicts_total",
		Help: "Total number of runs refused because the job was locked",
	})

	locksHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mpapi_job_locks_held",
		Help: "Number of job locks held by this process",
	})
)

var (
	// ErrLocked is returned by Acquire when another holder has the job.
	ErrLocked = errors.New("job is locked")

	// ErrNotHeld is returned by Release when the lock expired or was taken
	// over by someone else.
	ErrNotHeld = errors.New("job lock not held")
)

// DefaultTTL bounds how long a crashed holder blocks the job.
const DefaultTTL = 6 * time.Hour

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a per-job lock. A Lock is used by one run; it is not reentrant.
type Lock struct {
	redis  *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a lock for job. A ttl <= 0 means DefaultTTL.
func New(redisClient *redis.Client, job string, ttl time.Duration, logger zerolog.Logger) *Lock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{
		redis:  redisClient,
		key:    Key(job),
		token:  ulid.Make().String(),
		ttl:    ttl,
		logger: logger,
	}
}

// Key returns the Redis key used for job.
func Key(job string) string {
	return "mpapi:lock:job:" + job
}

// Token identifies this holder.
func (l *Lock) Token() string {
	return l.token
}

// Acquire takes the lock or returns an error wrapping ErrLocked.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.redis.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		lockConflictsTotal.Inc()
		holder, _ := l.redis.Get(ctx, l.key).Result()
		ttl, _ := l.redis.PTTL(ctx, l.key).Result()
		l.logger.Warn().
			Str("key", l.key).
			Str("holder", holder).
			Dur("ttl", ttl).
			Msg("Job is locked by another run")
		return fmt.Errorf("%w: %s held by %s (expires in %s)", ErrLocked, l.key, holder, ttl.Round(time.Second))
	}

	locksHeld.Inc()
	l.logger.Info().
		Str("key", l.key).
		Str("token", l.token).
		Dur("ttl", l.ttl).
		Msg("Job lock acquired")
	return nil
}

// Release frees the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.redis, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release job lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}

	locksHeld.Dec()
	l.logger.Info().Str("key", l.key).Msg("Job lock released")
	return nil
}
