// Package nats implements the rule service contract over NATS
// request/reply. Each operation has its own subject under a common prefix
// and replies share one envelope:
//
//	{"data": ..., "error": {"kind": "validation", "message": "...", "fields": [...]}}
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"rule-console/internal/logger"
	"rule-console/internal/rule"
	"rule-console/internal/store"
)

// Requester is the part of *nats.Conn the client needs
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// Client sends rule service requests over NATS
type Client struct {
	conn    Requester
	prefix  string
	timeout time.Duration
	logger  *logger.Logger
}

// NewClient creates a NATS client publishing under prefix
func NewClient(conn Requester, prefix string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		conn:    conn,
		prefix:  NormalizeSubject(prefix),
		timeout: timeout,
		logger:  log,
	}
}

type listRequest struct {
	Filter store.Filter `json:"filter"`
	Page   store.Page   `json:"page"`
}

type updateRequest struct {
	ID    string     `json:"id"`
	Draft rule.Draft `json:"rule"`
}

type deleteRequest struct {
	ID string `json:"id"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *replyError     `json:"error"`
}

type replyError struct {
	Kind    string             `json:"kind"`
	Message string             `json:"message"`
	Fields  []store.FieldError `json:"fields"`
	Status  int                `json:"status"`
}

// Subject returns the subject serving op
func (c *Client) Subject(op string) string {
	switch op {
	case store.OpGetQueueStats:
		return c.prefix + ".queue.stats"
	default:
		return c.prefix + ".rules." + op
	}
}

func (c *Client) ListRules(ctx context.Context, filter store.Filter, page store.Page) (*store.RuleList, error) {
	var list store.RuleList
	if err := c.request(ctx, store.OpListRules, listRequest{Filter: filter, Page: page}, &list); err != nil {
		return nil, err
	}
	if list.Rules == nil {
		list.Rules = []rule.Rule{}
	}
	return &list, nil
}

func (c *Client) CreateRule(ctx context.Context, draft rule.Draft) (*rule.Rule, error) {
	var created rule.Rule
	if err := c.request(ctx, store.OpCreateRule, draft, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateRule(ctx context.Context, id string, draft rule.Draft) (*rule.Rule, error) {
	var updated rule.Rule
	if err := c.request(ctx, store.OpUpdateRule, updateRequest{ID: id, Draft: draft}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.request(ctx, store.OpDeleteRule, deleteRequest{ID: id}, nil)
}

func (c *Client) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	var stats store.QueueStats
	if err := c.request(ctx, store.OpGetQueueStats, struct{}{}, &stats); err != nil {
		return nil, err
	}
	if stats.CollectedAt.IsZero() {
		stats.CollectedAt = time.Now().UTC()
	}
	return &stats, nil
}

func (c *Client) request(ctx context.Context, op string, payload, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	msg := nats.NewMsg(c.Subject(op))
	msg.Data = data
	msg.Header.Set("Request-Id", uuid.NewString())

	c.logger.Debug("sending rule service request",
		"op", op,
		"subject", msg.Subject,
		"requestId", msg.Header.Get("Request-Id"))

	reply, err := c.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return &store.NetworkError{Op: op, Err: normalizeRequestError(err)}
	}

	var env envelope
	if err := json.Unmarshal(reply.Data, &env); err != nil {
		return fmt.Errorf("%s: failed to decode reply: %w", op, err)
	}

	if env.Error != nil {
		return env.Error.toStoreError(op)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode reply data: %w", op, err)
	}
	return nil
}

// normalizeRequestError folds the NATS timeout into the context error so
// callers can test for it uniformly.
func normalizeRequestError(err error) error {
	if errors.Is(err, nats.ErrTimeout) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func (e *replyError) toStoreError(op string) error {
	switch e.Kind {
	case string(store.KindValidation):
		return &store.ValidationError{Op: op, Message: e.Message, Fields: e.Fields}
	case string(store.KindAuthorization):
		return &store.AuthorizationError{Op: op, Message: e.Message}
	default:
		status := e.Status
		if status == 0 {
			status = 500
		}
		return &store.StatusError{Op: op, Status: status, Message: e.Message}
	}
}

var _ store.Store = (*Client)(nil)
