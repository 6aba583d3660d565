// Package janitor periodically removes expired WebAuthn challenges and OTP codes.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"passkey-gate/internal/logger"
)

// DefaultRetention keeps expired rows around briefly for forensic lookups.
const DefaultRetention = time.Hour

// ChallengePurger deletes challenges that expired more than retention ago.
type ChallengePurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// CodePurger deletes OTP codes that expired before cutoff.
type CodePurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor runs both purges on an interval.
type Janitor struct {
	challenges ChallengePurger
	codes      CodePurger
	retention  time.Duration
	log        *zap.Logger
	nowF       func() time.Time
}

// New returns a janitor. A nil purger is skipped.
func New(challenges ChallengePurger, codes CodePurger, retention time.Duration, log *zap.Logger) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Janitor{
		challenges: challenges,
		codes:      codes,
		retention:  retention,
		log:        logger.OrNop(log),
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the janitor clock. Intended for tests.
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.nowF = now
	return j
}

// Start runs Sweep every interval in a goroutine until ctx is done.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one pass. Failures are logged; the next pass retries.
func (j *Janitor) Sweep(ctx context.Context) {
	if j.challenges != nil {
		n, err := j.challenges.Purge(ctx, j.retention)
		if err != nil {
			j.log.Warn("purge challenges failed", zap.Error(err))
		} else if n > 0 {
			j.log.Debug("purged challenges", zap.Int64("count", n))
		}
	}
	if j.codes != nil {
		n, err := j.codes.DeleteExpired(ctx, j.nowF().Add(-j.retention))
		if err != nil {
			j.log.Warn("purge otp codes failed", zap.Error(err))
		} else if n > 0 {
			j.log.Debug("purged otp codes", zap.Int64("count", n))
		}
	}
}
