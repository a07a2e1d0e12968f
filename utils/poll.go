package utils

import (
	"context"
	"errors"
	"time"
)

// ErrPollExhausted is returned by Poll when check never reported done
// within MaxAttempts.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollConfig bounds a confirmation loop. Delays grow from Interval by
// Backoff (1 = linear/fixed) and are capped at MaxInterval.
type PollConfig struct {
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `json:"interval" mapstructure:"interval"`
	MaxInterval time.Duration `json:"max_interval" mapstructure:"max_interval"`
	Backoff     float64       `json:"backoff" mapstructure:"backoff"`
}

// Delay returns the wait before attempt n+1 (n is 0-based).
func (c PollConfig) Delay(n int) time.Duration {
	d := c.Interval
	factor := c.Backoff
	if factor < 1 {
		factor = 1
	}
	for range n {
		d = time.Duration(float64(d) * factor)
		if c.MaxInterval > 0 && d >= c.MaxInterval {
			return c.MaxInterval
		}
	}
	if c.MaxInterval > 0 && d > c.MaxInterval {
		return c.MaxInterval
	}
	return d
}

// Poll calls check up to MaxAttempts times, sleeping Delay(n) between calls,
// until it returns (true, nil) or a non-nil error. It returns
// ErrPollExhausted when the cap is hit and ctx.Err() when ctx is done.
func Poll(ctx context.Context, cfg PollConfig, check func(attempt int) (done bool, err error)) error {
	attempts := max(cfg.MaxAttempts, 1)
	for n := range attempts {
		done, err := check(n)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if n == attempts-1 {
			break
		}
		timer := time.NewTimer(cfg.Delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrPollExhausted
}
