package store

import (
	"context"
	"time"

	"rule-console/internal/logger"
	"rule-console/internal/rule"
)

// RetryPolicy bounds automatic retries of network failures
type RetryPolicy struct {
	Attempts int           // total attempts, including the first
	Backoff  time.Duration // delay before the first retry, doubled each time
}

// WithRetry retries network failures of idempotent operations.
// CreateRule is passed through untouched: repeating it could create the
// same rule twice, so retrying a create is left to the user.
func WithRetry(s Store, policy RetryPolicy, log *logger.Logger) Store {
	if policy.Attempts <= 1 {
		return s
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 100 * time.Millisecond
	}
	return &retrying{next: s, policy: policy, logger: log}
}

type retrying struct {
	next   Store
	policy RetryPolicy
	logger *logger.Logger
}

func (r *retrying) do(ctx context.Context, op string, fn func() error) error {
	delay := r.policy.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !Retryable(err) || attempt >= r.policy.Attempts {
			return err
		}

		r.logger.Debug("retrying rule service request",
			"op", op,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay *= 2
	}
}

func (r *retrying) ListRules(ctx context.Context, filter Filter, page Page) (*RuleList, error) {
	var list *RuleList
	err := r.do(ctx, OpListRules, func() error {
		var err error
		list, err = r.next.ListRules(ctx, filter, page)
		return err
	})
	return list, err
}

func (r *retrying) CreateRule(ctx context.Context, draft rule.Draft) (*rule.Rule, error) {
	return r.next.CreateRule(ctx, draft)
}

func (r *retrying) UpdateRule(ctx context.Context, id string, draft rule.Draft) (*rule.Rule, error) {
	var updated *rule.Rule
	err := r.do(ctx, OpUpdateRule, func() error {
		var err error
		updated, err = r.next.UpdateRule(ctx, id, draft)
		return err
	})
	return updated, err
}

func (r *retrying) DeleteRule(ctx context.Context, id string) error {
	return r.do(ctx, OpDeleteRule, func() error {
		return r.next.DeleteRule(ctx, id)
	})
}

func (r *retrying) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	var stats *QueueStats
	err := r.do(ctx, OpGetQueueStats, func() error {
		var err error
		stats, err = r.next.GetQueueStats(ctx)
		return err
	})
	return stats, err
}
