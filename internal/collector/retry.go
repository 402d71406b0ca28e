package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/metrics"
	"github.com/brewsignal/brewsignal/internal/net/circuit"
	"github.com/brewsignal/brewsignal/internal/net/ratelimit"
)

// Paced wraps a Collector with per-source pacing, retry with exponential
// backoff, and circuit breaking. All sources share the two managers so that
// pacing and breaker state are per source key, not per wrapper.
type Paced struct {
	inner      Collector
	limiter    *ratelimit.Manager
	breaker    *circuit.Manager
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// NewPaced builds the pacing decorator around inner.
func NewPaced(inner Collector, limiter *ratelimit.Manager, breaker *circuit.Manager, maxRetries int, log zerolog.Logger) *Paced {
	return &Paced{
		inner:      inner,
		limiter:    limiter,
		breaker:    breaker,
		maxRetries: maxRetries,
		sleep:      sleepCtx,
		log:        log.With().Str("source", inner.Key()).Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Key returns the wrapped source key.
func (p *Paced) Key() string { return p.inner.Key() }

// Fetch runs the keyword fetch with up to maxRetries attempts. Between
// attempts it waits 2^attempt seconds. Auth failures abort immediately; an
// open breaker surfaces as a rate_limit failure.
func (p *Paced) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.CollectorRetry(p.inner.Key())
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			p.log.Debug().Int("attempt", attempt).Dur("backoff", backoff).
				Str("keyword", req.Keyword).Msg("retrying fetch")
			if err := p.sleep(ctx, backoff); err != nil {
				return nil, NewFetchError(KindTimeout, 0, err)
			}
		}

		if err := p.limiter.Wait(ctx, p.inner.Key()); err != nil {
			return nil, NewFetchError(KindTimeout, 0, err)
		}

		var result *FetchResult
		err := p.breaker.Call(ctx, p.inner.Key(), func(ctx context.Context) error {
			res, err := p.inner.Fetch(ctx, req)
			if err != nil {
				return err
			}
			if len(res.Points) == 0 {
				return NewFetchError(KindEmpty, res.HTTPCode, errors.New("no data points returned"))
			}
			result = res
			return nil
		})
		if err == nil {
			metrics.CollectorAttempt(p.inner.Key(), "success")
			return result, nil
		}
		if errors.Is(err, circuit.ErrOpen) {
			metrics.BreakerOpen(p.inner.Key())
			err = NewFetchError(KindRateLimit, 0, err)
		}

		lastErr = err
		kind := Classify(err)
		metrics.CollectorAttempt(p.inner.Key(), string(kind))
		p.log.Warn().Err(err).Str("kind", string(kind)).
			Str("keyword", req.Keyword).Int("attempt", attempt+1).Msg("fetch failed")
		if !kind.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, NewFetchError(KindTimeout, 0, ctx.Err())
		}
	}
	return nil, lastErr
}
