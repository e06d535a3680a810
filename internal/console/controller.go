// Package console runs the notification rule console: it owns the view
// state, issues rule service requests and polls queue statistics.
//
// Every state change runs on one goroutine, one at a time. Requests run
// outside it and post their outcome back, so a slow list reload never
// delays a stats tick and the other way round.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rule-console/internal/logger"
	"rule-console/internal/metrics"
	"rule-console/internal/poller"
	"rule-console/internal/rule"
	"rule-console/internal/stats"
	"rule-console/internal/store"
	"rule-console/internal/view"
)

var (
	ErrClosed         = errors.New("console closed")
	ErrNotStarted     = errors.New("console not started")
	ErrAlreadyStarted = errors.New("console already started")
	ErrNotConfirmed   = errors.New("delete not confirmed")
	ErrUnknownRule    = errors.New("rule not loaded")
	ErrTickSkipped    = errors.New("stats fetch already in progress")
	ErrUnknownEvent   = errors.New("unknown event")
)

const (
	DefaultPollInterval   = 10 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultPageSize       = 50
)

// Options configures a Controller
type Options struct {
	PollInterval         time.Duration
	RequestTimeout       time.Duration
	PageSize             int
	Filter               store.Filter
	KeepEditsOnTabSwitch bool

	Authorizer Authorizer
	Confirmer  Confirmer
	Logger     *logger.Logger
	Metrics    *metrics.Metrics

	// OnChange receives every new state. It runs on the state goroutine
	// and must not call Close.
	OnChange func(view.State)
}

// Controller is the console's only writer of view state
type Controller struct {
	store   store.Store
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Metrics
	machine *view.Machine
	poller  *poller.Poller
	tracker *stats.Tracker

	lifecycle sync.Mutex
	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	snapshot view.State
}

// New creates a controller over s. Nothing runs until Start.
func New(s store.Store, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	c := &Controller{
		store:   s,
		opts:    opts,
		logger:  log,
		metrics: opts.Metrics,
		machine: view.NewMachine(view.Options{
			KeepEditsOnTabSwitch: opts.KeepEditsOnTabSwitch,
			Guard:                guardFor(opts.Authorizer),
		}),
		tracker: stats.NewTracker(),
		ops:     make(chan func()),
		done:    make(chan struct{}),
	}
	c.poller = poller.New(opts.PollInterval, c.tick, log, opts.Metrics)
	c.snapshot = c.machine.State()
	return c
}

// Start launches the state goroutine and the poller, then loads the rule
// list and fetches queue stats once.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	if c.isClosed() {
		c.lifecycle.Unlock()
		return ErrClosed
	}
	if c.started.Load() {
		c.lifecycle.Unlock()
		return ErrAlreadyStarted
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()

	if err := c.poller.Start(c.ctx); err != nil {
		c.lifecycle.Unlock()
		return fmt.Errorf("failed to start poller: %w", err)
	}
	c.started.Store(true)
	c.lifecycle.Unlock()

	c.logger.Info("console started",
		"pollInterval", c.opts.PollInterval,
		"requestTimeout", c.opts.RequestTimeout,
		"canManageRules", c.canManage())

	if err := c.do(ctx, func() error {
		c.loadRules(c.machine.BeginLoad())
		return nil
	}); err != nil {
		return err
	}
	c.poller.Trigger()
	return nil
}

// Close stops the poller and discards every result still in flight. It is
// safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.lifecycle.Lock()
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		c.lifecycle.Unlock()

		c.poller.Stop()
		c.wg.Wait()
		c.logger.Info("console closed")
	})
}

// State returns the latest view state
func (c *Controller) State() view.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Clone()
}

// Tracker exposes the queue throughput tracker
func (c *Controller) Tracker() *stats.Tracker {
	return c.tracker
}

// Dispatch applies ev. SubmitForm and RequestDelete wait for the request
// and return its error, so the caller can react to it directly.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.started.Load() {
		return ErrNotStarted
	}

	var err error
	switch e := ev.(type) {
	case SwitchTab:
		err = c.do(ctx, func() error { return c.machine.SwitchTab(e.Tab) })
	case RequestCreate:
		err = c.do(ctx, c.machine.RequestCreate)
	case RequestEdit:
		err = c.do(ctx, func() error {
			if e.Rule != nil {
				return c.machine.RequestEdit(*e.Rule)
			}
			r, ok := c.machine.State().Rule(e.RuleID)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownRule, e.RuleID)
			}
			return c.machine.RequestEdit(r)
		})
	case Cancel:
		err = c.do(ctx, c.machine.Cancel)
	case Retry:
		err = c.do(ctx, func() error {
			seq, err := c.machine.Retry()
			if err != nil {
				return err
			}
			c.loadRules(seq)
			return nil
		})
	case Refresh:
		err = c.do(ctx, func() error {
			c.loadRules(c.machine.BeginLoad())
			return nil
		})
	case Tick:
		if !c.poller.Trigger() {
			err = ErrTickSkipped
		}
	case RequestDelete:
		err = c.deleteRule(ctx, e.RuleID)
	case SubmitForm:
		err = c.submit(ctx, e.Draft)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}

	if err != nil {
		c.logRejected(ev, err)
	}
	return err
}

func (c *Controller) deleteRule(ctx context.Context, id string) error {
	if err := c.do(ctx, c.machine.BeginDelete); err != nil {
		return err
	}

	confirmed, err := c.confirm(ctx, fmt.Sprintf("Delete rule %s?", id))
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrNotConfirmed
	}

	reqCtx, cancel := c.requestContext(ctx)
	err = asNetworkError(store.OpDeleteRule, c.store.DeleteRule(reqCtx, id))
	cancel()

	applyErr := c.do(context.Background(), func() error {
		if err != nil {
			c.machine.ActionFailed(err)
			return nil
		}
		c.loadRules(c.machine.BeginLoad())
		return nil
	})
	if err != nil {
		return err
	}
	if applyErr == nil {
		c.logger.Info("rule deleted", "id", id)
	}
	return applyErr
}

func (c *Controller) confirm(ctx context.Context, prompt string) (bool, error) {
	if c.opts.Confirmer == nil {
		return false, nil
	}
	return c.opts.Confirmer.Confirm(ctx, prompt)
}

func (c *Controller) submit(ctx context.Context, draft rule.Draft) error {
	var sub view.Submission
	if err := c.do(ctx, func() error {
		var err error
		sub, err = c.machine.BeginSubmit()
		return err
	}); err != nil {
		return err
	}

	op := store.OpCreateRule
	if sub.Mode == view.FormEdit {
		op = store.OpUpdateRule
	}

	var err error
	var ruleErr *rule.ValidationError
	if verr := rule.Validate(&draft); errors.As(verr, &ruleErr) {
		err = store.FromRuleValidation(op, ruleErr)
	} else if verr != nil {
		err = verr
	} else {
		err = c.write(ctx, sub, draft)
	}

	applyErr := c.do(context.Background(), func() error {
		if err != nil {
			c.machine.SubmitFailed(err)
			return nil
		}
		c.machine.SubmitSucceeded()
		c.loadRules(c.machine.BeginLoad())
		return nil
	})
	if err != nil {
		return err
	}
	return applyErr
}

func (c *Controller) write(ctx context.Context, sub view.Submission, draft rule.Draft) error {
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	if sub.Mode == view.FormEdit {
		updated, err := c.store.UpdateRule(reqCtx, sub.RuleID, draft)
		if err != nil {
			return asNetworkError(store.OpUpdateRule, err)
		}
		c.logger.Info("rule updated", "id", updated.ID, "name", updated.Name)
		return nil
	}

	created, err := c.store.CreateRule(reqCtx, draft)
	if err != nil {
		return asNetworkError(store.OpCreateRule, err)
	}
	c.logger.Info("rule created", "id", created.ID, "name", created.Name)
	return nil
}

// loadRules issues a list request for load seq. Must run on the state
// goroutine.
func (c *Controller) loadRules(seq uint64) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := c.requestContext(c.ctx)
		list, err := c.store.ListRules(ctx, c.opts.Filter, store.Page{Limit: c.opts.PageSize})
		cancel()
		err = asNetworkError(store.OpListRules, err)

		c.post(func() {
			if err != nil {
				if c.machine.ListFailed(seq, err) {
					c.logger.Warn("failed to load rules", "error", err)
				}
				return
			}
			if c.machine.ListLoaded(seq, list) {
				c.logger.Debug("rules loaded", "count", len(list.Rules), "total", list.Total)
				if c.metrics != nil {
					c.metrics.SetRulesLoaded(float64(len(list.Rules)))
				}
			} else {
				c.logger.Debug("discarding superseded rule list", "seq", seq)
			}
		})
	}()
}

// tick is the poller callback. Failures leave the last snapshot in place.
func (c *Controller) tick(ctx context.Context) error {
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	snapshot, err := c.store.GetQueueStats(reqCtx)
	if err != nil {
		err = asNetworkError(store.OpGetQueueStats, err)
		c.logger.Debug("queue stats unavailable", "error", err)
		return err
	}

	rates := c.tracker.Observe(*snapshot)
	c.post(func() {
		c.machine.StatsLoaded(*snapshot, rates)
		if c.metrics != nil {
			c.metrics.SetQueueItems("waiting", float64(snapshot.Waiting))
			c.metrics.SetQueueItems("active", float64(snapshot.Active))
			c.metrics.SetQueueItems("completed", float64(snapshot.Completed))
			c.metrics.SetQueueItems("failed", float64(snapshot.Failed))
		}
	})
	return nil
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.ops:
			// a result may race Close; it must not land after teardown
			if c.isClosed() {
				return
			}
			fn()
			c.publish()
		}
	}
}

// do runs fn on the state goroutine and returns its error
func (c *Controller) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.ops <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-c.done:
		// fn may still have run; its result is discarded with the rest
		return ErrClosed
	}
}

// post queues fn without waiting. Results posted after Close are dropped.
func (c *Controller) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.done:
	}
}

func (c *Controller) publish() {
	state := c.machine.State()

	c.mu.Lock()
	c.snapshot = state
	c.mu.Unlock()

	if c.opts.OnChange != nil {
		c.opts.OnChange(state.Clone())
	}
}

func (c *Controller) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Controller) canManage() bool {
	return c.opts.Authorizer != nil && c.opts.Authorizer.CanManageRules()
}

func (c *Controller) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.ctx != nil && parent != c.ctx {
		// caller contexts end with the console too
		merged, cancel := context.WithCancel(parent)
		stop := context.AfterFunc(c.ctx, cancel)
		ctx, cancelTimeout := context.WithTimeout(merged, c.opts.RequestTimeout)
		return ctx, func() {
			cancelTimeout()
			stop()
			cancel()
		}
	}
	return context.WithTimeout(parent, c.opts.RequestTimeout)
}

func (c *Controller) logRejected(ev Event, err error) {
	var denied *view.DeniedError
	switch {
	case errors.As(err, &denied):
		c.logger.Debug("transition rejected", "event", ev.Name(), "action", denied.Action)
	case store.KindOf(err) != store.KindUnknown:
		c.logger.Warn("request failed", "event", ev.Name(), "kind", store.KindOf(err), "error", err)
		return
	default:
		c.logger.Debug("event rejected", "event", ev.Name(), "error", err)
	}
	if c.metrics != nil {
		if reason := view.Reason(err); reason != "other" {
			c.metrics.IncTransitionsRejected(reason)
		}
	}
}

// asNetworkError maps a deadline or cancellation that escaped the
// transport onto NetworkError.
func asNetworkError(op string, err error) error {
	if err == nil || store.KindOf(err) != store.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &store.NetworkError{Op: op, Err: err}
	}
	return err
}
