// Package rest implements the rule service contract over HTTP/JSON.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"rule-console/internal/logger"
	"rule-console/internal/rule"
	"rule-console/internal/store"
)

const maxErrorBody = 64 << 10

// Config contains REST client configuration
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the rule service REST API
type Client struct {
	baseURL *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *logger.Logger
}

// NewClient creates a REST client. A nil httpClient uses a default one.
func NewClient(cfg Config, httpClient *http.Client, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https: %s", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    httpClient,
		logger:  log,
	}, nil
}

func (c *Client) ListRules(ctx context.Context, filter store.Filter, page store.Page) (*store.RuleList, error) {
	query := url.Values{}
	if filter.Query != "" {
		query.Set("q", filter.Query)
	}
	if filter.Channel != "" {
		query.Set("channel", filter.Channel)
	}
	if filter.Enabled != nil {
		query.Set("enabled", strconv.FormatBool(*filter.Enabled))
	}
	if page.Offset > 0 {
		query.Set("offset", strconv.Itoa(page.Offset))
	}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}

	var list store.RuleList
	if err := c.do(ctx, store.OpListRules, http.MethodGet, "/rules", query, nil, &list); err != nil {
		return nil, err
	}
	if list.Rules == nil {
		list.Rules = []rule.Rule{}
	}
	return &list, nil
}

func (c *Client) CreateRule(ctx context.Context, draft rule.Draft) (*rule.Rule, error) {
	var created rule.Rule
	if err := c.do(ctx, store.OpCreateRule, http.MethodPost, "/rules", nil, draft, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateRule(ctx context.Context, id string, draft rule.Draft) (*rule.Rule, error) {
	var updated rule.Rule
	if err := c.do(ctx, store.OpUpdateRule, http.MethodPut, "/rules/"+url.PathEscape(id), nil, draft, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, store.OpDeleteRule, http.MethodDelete, "/rules/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	var stats store.QueueStats
	if err := c.do(ctx, store.OpGetQueueStats, http.MethodGet, "/queue/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	if stats.CollectedAt.IsZero() {
		stats.CollectedAt = time.Now().UTC()
	}
	return &stats, nil
}

// do sends one request, bounded by the client timeout, and decodes a 2xx
// body into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// path arrives escaped so ids containing '/' stay one segment
	endpoint := *c.baseURL
	endpoint.RawPath = c.baseURL.EscapedPath() + path
	unescaped, err := url.PathUnescape(endpoint.RawPath)
	if err != nil {
		return fmt.Errorf("%s: invalid request path: %w", op, err)
	}
	endpoint.Path = unescaped
	endpoint.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("sending rule service request",
		"op", op,
		"method", method,
		"url", endpoint.String(),
		"requestId", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &store.NetworkError{Op: op, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return &store.NetworkError{Op: op, Err: readErr}
		}
		return decodeError(op, resp.StatusCode, data)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return decodeBodyError(ctx, op, resp.StatusCode, err)
	}
	return nil
}

// decodeBodyError classifies a failure to decode a 2xx body. A body cut
// off in transit is a network failure. An empty or malformed body that
// arrived whole is not retryable.
func decodeBodyError(ctx context.Context, op string, status int, err error) error {
	if ctx.Err() != nil {
		return &store.NetworkError{Op: op, Err: ctx.Err()}
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return &store.StatusError{Op: op, Status: status, Message: "empty response body"}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return &store.StatusError{Op: op, Status: status, Message: fmt.Sprintf("malformed response body: %v", err)}
	default:
		return &store.NetworkError{Op: op, Err: fmt.Errorf("truncated response body: %w", err)}
	}
}

// unwrapURLError strips the *url.Error wrapper so timeouts surface as
// context.DeadlineExceeded.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// decodeError maps a non-2xx response onto the store error taxonomy. The
// message and field errors are picked from the common shapes:
//
//	{"message": "...", "errors": [{"field": "...", "message": "..."}]}
//	{"error": {"message": "...", "fields": {"channel": "required"}}}
func decodeError(op string, status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var fields []store.FieldError

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		message = firstString(parsed, "message", "error.message", "error", "detail")
		fields = fieldErrors(parsed)
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		return &store.ValidationError{Op: op, Message: message, Fields: fields}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &store.AuthorizationError{Op: op, Message: message}
	default:
		return &store.StatusError{Op: op, Status: status, Message: message}
	}
}

func firstString(parsed gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := parsed.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func fieldErrors(parsed gjson.Result) []store.FieldError {
	var fields []store.FieldError
	for _, path := range []string{"errors", "error.fields", "fields"} {
		v := parsed.Get(path)
		switch {
		case v.IsArray():
			v.ForEach(func(_, item gjson.Result) bool {
				field := item.Get("field").String()
				if field == "" {
					field = item.Get("path").String()
				}
				if field != "" {
					fields = append(fields, store.FieldError{Field: field, Message: item.Get("message").String()})
				}
				return true
			})
		case v.IsObject():
			v.ForEach(func(key, item gjson.Result) bool {
				msg := item.String()
				if item.IsArray() {
					msg = item.Get("0").String()
				}
				fields = append(fields, store.FieldError{Field: key.String(), Message: msg})
				return true
			})
		}
		if len(fields) > 0 {
			return fields
		}
	}
	return nil
}

var _ store.Store = (*Client)(nil)
