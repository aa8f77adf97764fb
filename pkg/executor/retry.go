package executor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/config"
	"github.com/sdamache/memorybench/pkg/durability"
)

// retryer wraps a single case invocation in the exponential-backoff policy
// of §4.D. Permanent errors fail fast; transient errors are retried up to
// MaxRetries times with jittered backoff.
type retryer struct {
	cfg config.RetryConfig
}

func newRetryer(cfg config.RetryConfig) *retryer {
	return &retryer{cfg: cfg}
}

// run invokes fn until it succeeds, is classified permanent, or exhausts
// MaxRetries. The returned history carries one AttemptRecord per attempt
// made; an attempt's DelayMs is the delay actually slept before that
// attempt ran (0 for the first attempt, which is never preceded by one).
func (r *retryer) run(ctx context.Context, fn func(ctx context.Context) (benchmark.Result, error)) (benchmark.Result, []durability.AttemptRecord, error) {
	var history []durability.AttemptRecord
	var delayBeforeAttempt time.Duration

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delayBeforeAttempt):
			case <-ctx.Done():
				return benchmark.Result{}, history, ctx.Err()
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, history, nil
		}

		cat := classify(err)
		record := durability.AttemptRecord{
			Attempt:   attempt,
			Category:  string(cat),
			Message:   err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			DelayMs:   delayBeforeAttempt.Milliseconds(),
		}
		history = append(history, record)

		if cat == categoryPermanent || attempt >= r.cfg.MaxRetries {
			return benchmark.Result{}, history, err
		}

		delayBeforeAttempt = jitteredDelay(r.cfg, attempt)
	}
}

// jitteredDelay applies delay = min(base*2^attempt, max) * U(1-jitter, 1+jitter)
// (§4.D "Retry policy").
func jitteredDelay(cfg config.RetryConfig, attempt int) time.Duration {
	nominal := cfg.Delay(attempt)
	if cfg.JitterFactor <= 0 {
		return nominal
	}
	factor := (1 - cfg.JitterFactor) + rand.Float64()*(2*cfg.JitterFactor)
	return time.Duration(float64(nominal) * factor)
}
