package probe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skifli/bruty/pkg/alphabet"
	"github.com/skifli/bruty/pkg/wire"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// EngineConfig controls how a worker expands and probes one dispatched
// base prefix.
type EngineConfig struct {
	// Concurrency is the number of identifiers probed in parallel.
	// Default: 256
	Concurrency int

	// ChannelBuffer bounds the producer/worker handoff so expansion of a
	// batch doesn't outrun classification.
	// Default: 256
	ChannelBuffer int

	// RateLimit caps outbound requests per second. Zero means unlimited.
	// Default: 0
	RateLimit float64

	// InitialBackoff and MaxBackoff bound the exponential retry delay
	// applied to transient oracle failures.
	// Defaults: 250ms, 30s
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultEngineConfig returns the engine's default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency:    256,
		ChannelBuffer:  256,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Engine expands a base prefix into the full identifier space beneath
// it and classifies every identifier against an Oracle.
//
// Engine is safe for concurrent use; each Run call is independent.
type Engine struct {
	oracle  *Oracle
	config  EngineConfig
	limiter *rate.Limiter

	probed    atomic.Int64
	positives atomic.Int64
	retries   atomic.Int64
}

// NewEngine builds an Engine around oracle. Zero fields in cfg fall
// back to DefaultEngineConfig.
func NewEngine(oracle *Oracle, cfg EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = defaults.ChannelBuffer
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}

	e := &Engine{oracle: oracle, config: cfg}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return e
}

// Stats reports the engine's lifetime counters.
type Stats struct {
	Probed    int64
	Positives int64
	Retries   int64
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Probed:    e.probed.Load(),
		Positives: e.positives.Load(),
		Retries:   e.retries.Load(),
	}
}

// Run classifies every full identifier in prefix's subtree and returns
// the resulting batch. It retries transient oracle failures
// indefinitely with exponential backoff and suppresses NotFound from
// the result, per the wire protocol's batch semantics. Run returns
// early, discarding partial progress, if ctx is canceled or any worker
// hits a non-transient, non-NotFound error.
func (e *Engine) Run(ctx context.Context, prefix string) (*wire.TestingResultPayload, error) {
	g, gctx := errgroup.WithContext(ctx)

	ids := make(chan string, e.config.ChannelBuffer)
	g.Go(func() error {
		defer close(ids)
		return generate(gctx, prefix, ids)
	})

	var mu sync.Mutex
	var positives []wire.Positive

	for i := 0; i < e.config.Concurrency; i++ {
		g.Go(func() error {
			for id := range ids {
				if e.limiter != nil {
					if err := e.limiter.Wait(gctx); err != nil {
						return err
					}
				}
				verdict, err := e.classifyWithRetry(gctx, id)
				if err != nil {
					return err
				}
				e.probed.Add(1)
				if verdict == nil {
					continue // NotFound, suppressed from the result
				}

				p := wire.Positive{ID: id, Outcome: wire.Outcome(verdict.Outcome)}
				if verdict.Outcome == VerdictSuccess {
					p.Metadata = &wire.Metadata{
						Title:      verdict.Title,
						AuthorName: verdict.AuthorName,
						AuthorURL:  verdict.AuthorURL,
					}
				}
				mu.Lock()
				positives = append(positives, p)
				mu.Unlock()
				e.positives.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &wire.TestingResultPayload{Prefix: prefix, Positives: positives}, nil
}

// classifyWithRetry retries transient oracle failures with exponential
// backoff until ctx is done. ErrNotFound yields a nil verdict and nil
// error. Any other error is returned immediately without retry.
func (e *Engine) classifyWithRetry(ctx context.Context, id string) (*Verdict, error) {
	backoff := e.config.InitialBackoff
	for {
		verdict, err := e.oracle.Classify(ctx, id)
		if err == nil {
			return verdict, nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, err
		}

		e.retries.Add(1)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > e.config.MaxBackoff {
			backoff = e.config.MaxBackoff
		}
	}
}

// generate enumerates every full identifier beneath prefix, in
// alphabet order, onto out. It blocks on send so a slow consumer
// applies backpressure all the way to expansion.
func generate(ctx context.Context, prefix string, out chan<- string) error {
	remaining := alphabet.IdentifierLength - len(prefix)
	if remaining <= 0 {
		return send(ctx, out, prefix)
	}

	idx := make([]int, remaining)
	for {
		buf := make([]byte, 0, alphabet.IdentifierLength)
		buf = append(buf, prefix...)
		for _, i := range idx {
			buf = append(buf, alphabet.At(i))
		}
		if err := send(ctx, out, string(buf)); err != nil {
			return err
		}

		pos := remaining - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < alphabet.Len {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return nil // odometer wrapped: every identifier has been emitted
		}
	}
}

func send(ctx context.Context, out chan<- string, id string) error {
	select {
	case out <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
