// Package store defines the client contract of the remote rule service and
// the decorators shared by its transports.
package store

import (
	"context"
	"time"

	"rule-console/internal/rule"
)

// Operation names used in errors, logs and metrics
const (
	OpListRules     = "list"
	OpCreateRule    = "create"
	OpUpdateRule    = "update"
	OpDeleteRule    = "delete"
	OpGetQueueStats = "queue_stats"
)

// Filter narrows a rule listing
type Filter struct {
	Query   string `json:"q,omitempty"`
	Channel string `json:"channel,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Page selects a window of the rule listing
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RuleList is one page of rules plus the total matching the filter
type RuleList struct {
	Rules []rule.Rule `json:"rules"`
	Total int         `json:"total"`
}

// QueueStats is a point in time snapshot of the delivery queue
type QueueStats struct {
	Waiting     int64     `json:"waiting"`
	Active      int64     `json:"active"`
	Completed   int64     `json:"completed"`
	Failed      int64     `json:"failed"`
	CollectedAt time.Time `json:"collectedAt"`
}

// Store is the request/response contract of the rule service. It owns no
// state. Every method may fail with *NetworkError, *ValidationError or
// *AuthorizationError.
type Store interface {
	ListRules(ctx context.Context, filter Filter, page Page) (*RuleList, error)
	CreateRule(ctx context.Context, draft rule.Draft) (*rule.Rule, error)
	UpdateRule(ctx context.Context, id string, draft rule.Draft) (*rule.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	StatsSource
}

// StatsSource reads queue statistics
type StatsSource interface {
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

// WithStatsSource returns a Store that reads queue stats from src and
// everything else from s.
func WithStatsSource(s Store, src StatsSource) Store {
	if src == nil {
		return s
	}
	return &statsOverride{Store: s, src: src}
}

type statsOverride struct {
	Store
	src StatsSource
}

func (o *statsOverride) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	return o.src.GetQueueStats(ctx)
}
