// Package waitfor polls the page for an asynchronous UI effect with an upper
// bound on how long it keeps trying.
package waitfor

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/pacing"
)

var ErrTimeout = errors.New("timed out")

// Config bounds a poll. A zero Timeout polls until the context is done.
type Config struct {
	Timeout  time.Duration
	Interval time.Duration
	// Pause defaults to pacing.Sleep.
	Pause func(context.Context, time.Duration) error
}

// Until calls check until it reports true. After every unsuccessful check it
// runs nudge (when set) and pauses for a jittered Interval. Errors from check
// or nudge stop the poll immediately.
func Until(ctx context.Context, cfg Config, what string, check func() (bool, error), nudge func() error) error {
	builder := retrypolicy.NewBuilder[bool]().
		HandleIf(func(done bool, err error) bool {
			return err == nil && !done
		}).
		WithMaxRetries(-1)
	if cfg.Timeout > 0 {
		builder = builder.WithMaxDuration(cfg.Timeout)
	}

	pause := cfg.Pause
	if pause == nil {
		pause = pacing.Sleep
	}

	var failure error
	done, _ := failsafe.With[bool](builder.Build()).
		WithContext(ctx).
		Get(func() (bool, error) {
			ok, err := check()
			if err != nil {
				failure = err
				return false, err
			}
			if ok {
				return true, nil
			}
			if nudge != nil {
				if err := nudge(); err != nil {
					failure = err
					return false, err
				}
			}
			if err := pause(ctx, cfg.Interval); err != nil {
				failure = err
				return false, err
			}
			return false, nil
		})

	if err := ctx.Err(); err != nil {
		return err
	}
	if failure != nil {
		return failure
	}
	if !done {
		return errors.Wrapf(ErrTimeout, "%s after %s", what, cfg.Timeout)
	}
	return nil
}
