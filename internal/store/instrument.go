package store

import (
	"context"
	"time"

	"rule-console/internal/logger"
	"rule-console/internal/metrics"
	"rule-console/internal/rule"
)

// Instrument records latency and outcome of every call and logs failures.
// A nil metrics collector only logs.
func Instrument(s Store, m *metrics.Metrics, log *logger.Logger) Store {
	return &instrumented{next: s, metrics: m, logger: log}
}

type instrumented struct {
	next    Store
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	if i.metrics != nil {
		i.metrics.ObserveRequest(op, Result(err), elapsed)
	}
	if err != nil {
		i.logger.Warn("rule service request failed",
			"op", op,
			"kind", KindOf(err),
			"elapsed", elapsed,
			"error", err)
		return
	}
	i.logger.Debug("rule service request completed",
		"op", op,
		"elapsed", elapsed)
}

func (i *instrumented) ListRules(ctx context.Context, filter Filter, page Page) (*RuleList, error) {
	start := time.Now()
	list, err := i.next.ListRules(ctx, filter, page)
	i.observe(OpListRules, start, err)
	return list, err
}

func (i *instrumented) CreateRule(ctx context.Context, draft rule.Draft) (*rule.Rule, error) {
	start := time.Now()
	created, err := i.next.CreateRule(ctx, draft)
	i.observe(OpCreateRule, start, err)
	return created, err
}

func (i *instrumented) UpdateRule(ctx context.Context, id string, draft rule.Draft) (*rule.Rule, error) {
	start := time.Now()
	updated, err := i.next.UpdateRule(ctx, id, draft)
	i.observe(OpUpdateRule, start, err)
	return updated, err
}

func (i *instrumented) DeleteRule(ctx context.Context, id string) error {
	start := time.Now()
	err := i.next.DeleteRule(ctx, id)
	i.observe(OpDeleteRule, start, err)
	return err
}

func (i *instrumented) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	start := time.Now()
	stats, err := i.next.GetQueueStats(ctx)
	i.observe(OpGetQueueStats, start, err)
	return stats, err
}
