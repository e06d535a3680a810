package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rule-console/internal/rule"
)

// Kind classifies rule service failures
type Kind string

const (
	KindNone          Kind = ""
	KindNetwork       Kind = "network"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindUnknown       Kind = "unknown"
)

// NetworkError means no response was received: connection failures,
// timeouts and cancelled requests.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time
func (e *NetworkError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// FieldError is a validation message attached to one input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError means the service rejected the payload
type ValidationError struct {
	Op      string
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: validation failed: %s", e.Op, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: validation failed: %s", e.Op, strings.Join(parts, "; "))
}

// Field returns the message for a field, if the error carries one
func (e *ValidationError) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message, true
		}
	}
	return "", false
}

// FromRuleValidation converts a local rule check failure into the same
// shape the service returns.
func FromRuleValidation(op string, err *rule.ValidationError) *ValidationError {
	return &ValidationError{
		Op:      op,
		Message: "invalid rule",
		Fields:  []FieldError{{Field: err.Field, Message: err.Message}},
	}
}

// AuthorizationError means the caller lacks the privilege for the operation
type AuthorizationError struct {
	Op      string
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: access denied", e.Op)
	}
	return fmt.Sprintf("%s: access denied: %s", e.Op, e.Message)
}

// StatusError is a response outside the three known failure kinds
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Message)
}

// KindOf classifies err
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		netErr   *NetworkError
		valErr   *ValidationError
		authzErr *AuthorizationError
	)
	switch {
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &authzErr):
		return KindAuthorization
	default:
		return KindUnknown
	}
}

// Retryable reports whether repeating the request may succeed. Only
// network failures qualify.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// Result is a short label for metrics
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}
