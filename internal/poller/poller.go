// Package poller runs a refresh function on a fixed interval without ever
// letting two runs overlap.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rule-console/internal/logger"
	"rule-console/internal/metrics"
)

var (
	ErrAlreadyStarted = errors.New("poller already started")
	ErrStopped        = errors.New("poller stopped")
	ErrInvalidPeriod  = errors.New("poll interval must be positive")
)

// TickFunc is one refresh. It receives a context canceled on Stop.
type TickFunc func(ctx context.Context) error

// Stats counts tick outcomes
type Stats struct {
	Ticks   uint64
	Skipped uint64
	Errors  uint64
}

// Poller calls a TickFunc every interval. A tick that comes due while the
// previous one is still running is skipped, not queued.
type Poller struct {
	interval time.Duration
	fn       TickFunc
	logger   *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup

	inFlight atomic.Bool
	stats    Stats
}

// New creates a poller. metrics may be nil.
func New(interval time.Duration, fn TickFunc, log *logger.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		interval: interval,
		fn:       fn,
		logger:   log,
		metrics:  m,
	}
}

// Start begins ticking. The first tick fires one interval after Start; use
// Trigger for an immediate run.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return ErrInvalidPeriod
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.cancel != nil {
		return ErrAlreadyStarted
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(p.ctx)

	p.logger.Debug("poller started", "interval", p.interval)
	return nil
}

// Trigger runs a tick now unless one is already in flight or the poller
// is not running. It reports whether a tick was started.
func (p *Poller) Trigger() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.ctx == nil || p.ctx.Err() != nil {
		return false
	}
	return p.tick(p.ctx)
}

// Stop cancels the running tick, if any, and waits for it to return.
// Calling Stop more than once, or before Start, is safe. Stop must not be
// called from inside the TickFunc.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()

	stats := p.Stats()
	p.logger.Debug("poller stopped",
		"ticks", stats.Ticks,
		"skipped", stats.Skipped,
		"errors", stats.Errors)
}

// Stats returns a snapshot of the tick counters
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:   atomic.LoadUint64(&p.stats.Ticks),
		Skipped: atomic.LoadUint64(&p.stats.Skipped),
		Errors:  atomic.LoadUint64(&p.stats.Errors),
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			if !p.stopped {
				p.tick(ctx)
			}
			p.mu.Unlock()
		}
	}
}

// tick must be called with p.mu held
func (p *Poller) tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		atomic.AddUint64(&p.stats.Skipped, 1)
		p.observe("skipped")
		p.logger.Debug("skipping poll tick, previous tick still running")
		return false
	}

	atomic.AddUint64(&p.stats.Ticks, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)

		if err := p.fn(ctx); err != nil {
			atomic.AddUint64(&p.stats.Errors, 1)
			p.observe("error")
			if ctx.Err() == nil {
				p.logger.Warn("poll tick failed", "error", err)
			}
			return
		}
		p.observe("ok")
	}()
	return true
}

func (p *Poller) observe(result string) {
	if p.metrics != nil {
		p.metrics.IncPollTicks(result)
	}
}
