package changefeed

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/mileusna/crontab"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

const (
	sweepLockName   = "knowledge-api:expiry-sweep"
	sweepJobTimeout = 5 * time.Minute
)

// Sweeper removes expired rows and publishes their removal.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Locker runs fn while holding a named lock.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// ErrLockHeld is returned when another replica holds the lock.
var ErrLockHeld = errors.New("lock held by another replica")

// RedisLocker takes redsync mutexes.
type RedisLocker struct {
	rs *redsync.Redsync
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client))}
}

func (l *RedisLocker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		return ErrLockHeld
	}
	defer func() {
		_, _ = mutex.UnlockContext(context.Background())
	}()
	return fn(ctx)
}

// LocalLocker runs fn directly; a single replica needs no coordination.
type LocalLocker struct{}

func (LocalLocker) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Scheduler runs the expiry sweep on a cron schedule.
type Scheduler struct {
	ctab     *crontab.Crontab
	schedule string
	lockTTL  time.Duration
	sweeper  Sweeper
	locker   Locker
	log      zerolog.Logger
}

func NewScheduler(cfg *config.Config, sweeper Sweeper, locker Locker, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		ctab:     crontab.New(),
		schedule: cfg.ExpirySweepCron,
		lockTTL:  cfg.ExpirySweepLock,
		sweeper:  sweeper,
		locker:   locker,
		log:      log.With().Str("component", "expiry-scheduler").Logger(),
	}
}

// Run sweeps once, then on every schedule tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RunOnce(ctx)

	if err := s.ctab.AddJob(s.schedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, sweepJobTimeout)
		defer cancel()
		s.RunOnce(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add expiry sweep job")
	}
	s.log.Info().Str("schedule", s.schedule).Msg("expiry sweep scheduled")

	<-ctx.Done()
	s.ctab.Shutdown()
	return nil
}

// RunOnce performs a single locked sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	err := s.locker.WithLock(ctx, sweepLockName, s.lockTTL, func(ctx context.Context) error {
		_, err := s.sweeper.Sweep(ctx)
		return err
	})
	switch {
	case errors.Is(err, ErrLockHeld):
		s.log.Debug().Msg("expiry sweep running on another replica")
	case err != nil && ctx.Err() == nil:
		s.log.Error().Err(err).Msg("expiry sweep failed")
	}
}
