// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rule-console/internal/rule"
	"rule-console/internal/store"
)

// Fake is an in-memory rule service. Failures can be scripted per
// operation and any operation can be held open with Block to simulate a
// slow response.
type Fake struct {
	mu       sync.Mutex
	rules    []rule.Rule
	stats    store.QueueStats
	calls    map[string]int
	inFlight map[string]int
	maxIn    map[string]int
	failNext map[string][]error
	failAll  map[string]error
	gates    map[string]chan struct{}
}

// NewFake creates a fake holding rules
func NewFake(rules ...rule.Rule) *Fake {
	f := &Fake{
		calls:    make(map[string]int),
		inFlight: make(map[string]int),
		maxIn:    make(map[string]int),
		failNext: make(map[string][]error),
		failAll:  make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
	f.rules = append(f.rules, rules...)
	return f
}

// SampleRule builds a minimal valid rule
func SampleRule(id, name string) rule.Rule {
	now := time.Now().UTC()
	return rule.Rule{
		ID:      id,
		Name:    name,
		Enabled: true,
		Channel: rule.Channel{
			Type:     rule.ChannelEmail,
			Target:   "owner@example.com",
			Template: "New submission from ${name}",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FailNext makes the next call of op return err
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = append(f.failNext[op], err)
}

// FailAlways makes every call of op return err until cleared with nil
func (f *Fake) FailAlways(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failAll, op)
		return
	}
	f.failAll[op] = err
}

// Block holds every call of op open until the returned channel is closed
// or receives, or the call's context ends.
func (f *Fake) Block(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[op] = gate
	return gate
}

// Unblock removes the gate for op
func (f *Fake) Unblock(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.gates, op)
}

// SetQueueStats sets the snapshot returned by GetQueueStats
func (f *Fake) SetQueueStats(stats store.QueueStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = stats
}

// Calls returns how many times op was invoked
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// MaxInFlight returns the highest number of concurrent calls of op seen
func (f *Fake) MaxInFlight(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxIn[op]
}

// InFlight returns the number of calls of op currently open
func (f *Fake) InFlight(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight[op]
}

// Rules returns a copy of the stored rules
func (f *Fake) Rules() []rule.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rule.Rule, len(f.rules))
	copy(out, f.rules)
	return out
}

// enter records the call and waits on the gate for op, if any
func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	f.inFlight[op]++
	if f.inFlight[op] > f.maxIn[op] {
		f.maxIn[op] = f.inFlight[op]
	}
	gate := f.gates[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &store.NetworkError{Op: op, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if queued := f.failNext[op]; len(queued) > 0 {
		f.failNext[op] = queued[1:]
		return queued[0]
	}
	return f.failAll[op]
}

func (f *Fake) leave(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[op]--
}

func (f *Fake) ListRules(ctx context.Context, filter store.Filter, page store.Page) (*store.RuleList, error) {
	defer f.leave(store.OpListRules)
	if err := f.enter(ctx, store.OpListRules); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []rule.Rule
	for _, r := range f.rules {
		if filter.Query != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.Channel != "" && r.Channel.Type != filter.Channel {
			continue
		}
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		matched = append(matched, r)
	}

	total := len(matched)
	start := page.Offset
	if start > total {
		start = total
	}
	end := total
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}

	out := make([]rule.Rule, end-start)
	copy(out, matched[start:end])
	return &store.RuleList{Rules: out, Total: total}, nil
}

func (f *Fake) CreateRule(ctx context.Context, draft rule.Draft) (*rule.Rule, error) {
	defer f.leave(store.OpCreateRule)
	if err := f.enter(ctx, store.OpCreateRule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := rule.Rule{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Description: draft.Description,
		Enabled:     draft.Enabled,
		Trigger:     draft.Trigger,
		Channel:     draft.Channel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	f.mu.Lock()
	f.rules = append(f.rules, created)
	f.mu.Unlock()
	return &created, nil
}

func (f *Fake) UpdateRule(ctx context.Context, id string, draft rule.Draft) (*rule.Rule, error) {
	defer f.leave(store.OpUpdateRule)
	if err := f.enter(ctx, store.OpUpdateRule); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].ID != id {
			continue
		}
		f.rules[i].Name = draft.Name
		f.rules[i].Description = draft.Description
		f.rules[i].Enabled = draft.Enabled
		f.rules[i].Trigger = draft.Trigger
		f.rules[i].Channel = draft.Channel
		f.rules[i].UpdatedAt = time.Now().UTC()
		updated := f.rules[i]
		return &updated, nil
	}
	return nil, &store.StatusError{Op: store.OpUpdateRule, Status: 404, Message: "rule not found"}
}

func (f *Fake) DeleteRule(ctx context.Context, id string) error {
	defer f.leave(store.OpDeleteRule)
	if err := f.enter(ctx, store.OpDeleteRule); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return &store.StatusError{Op: store.OpDeleteRule, Status: 404, Message: "rule not found"}
}

func (f *Fake) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	defer f.leave(store.OpGetQueueStats)
	if err := f.enter(ctx, store.OpGetQueueStats); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	stats := f.stats
	if stats.CollectedAt.IsZero() {
		stats.CollectedAt = time.Now().UTC()
	}
	return &stats, nil
}

var _ store.Store = (*Fake)(nil)
