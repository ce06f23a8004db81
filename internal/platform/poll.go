package platform

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
)

// Poller bounds the status polling used by asynchronous media processing.
type Poller struct {
	Attempts int
	Interval time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

func DefaultPoller() Poller {
	return Poller{Attempts: 30, Interval: 2 * time.Second, Sleep: SleepContext}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll calls check until it reports done, returns an error, or the attempt bound is reached.
func (p Poller) Poll(ctx context.Context, what string, check func(ctx context.Context) (bool, error)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for i := 0; i < attempts; i++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return apperr.Wrap(apperr.ProcessingTimeout, err, what+" polling interrupted")
		}
	}
	return apperr.Newf(apperr.ProcessingTimeout, "%s not finished after %d attempts", what, attempts)
}
