// Package jobs runs periodic housekeeping: expired refresh tokens are purged
// and idle rate limiter entries dropped.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	limiterSweepSchedule = "@every 5m"
	limiterMaxIdle       = 10 * time.Minute
	purgeTimeout         = 30 * time.Second
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// TokenPurger deletes expired refresh tokens.
// Satisfied by *service.SessionService.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper drops idle entries. Satisfied by *middleware.RateLimiter.
type Sweeper interface {
	Cleanup(maxIdle time.Duration) int
}

type Scheduler struct {
	cron    *cron.Cron
	purger  TokenPurger
	sweeper Sweeper
}

// New registers the jobs. sweeper may be nil when rate limiting is off.
func New(tokenSchedule string, purger TokenPurger, sweeper Sweeper) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser)),
		purger:  purger,
		sweeper: sweeper,
	}

	if _, err := s.cron.AddFunc(tokenSchedule, s.purgeTokens); err != nil {
		return nil, fmt.Errorf("schedule token purge %q: %w", tokenSchedule, err)
	}
	if sweeper != nil {
		if _, err := s.cron.AddFunc(limiterSweepSchedule, s.sweepLimiter); err != nil {
			return nil, fmt.Errorf("schedule limiter sweep: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) purgeTokens() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorf("token purge panic: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		zap.L().Error("purge expired refresh tokens", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("purged expired refresh tokens", zap.Int64("count", n))
	}
}

func (s *Scheduler) sweepLimiter() {
	if n := s.sweeper.Cleanup(limiterMaxIdle); n > 0 {
		zap.L().Debug("rate limiter sweep", zap.Int("removed", n))
	}
}
