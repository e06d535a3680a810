// Package view holds the console's view state and the transitions that
// change it. Machine does no I/O; the console controller feeds it the
// outcome of every request.
package view

import (
	"errors"
	"fmt"

	"rule-console/internal/rule"
	"rule-console/internal/stats"
	"rule-console/internal/store"
)

// Tab is one of the console's top level views
type Tab string

const (
	TabRules   Tab = "rules"
	TabHistory Tab = "history"
	TabStats   Tab = "stats"
	TabQueue   Tab = "queue"
)

// Tabs lists every tab in display order
var Tabs = []Tab{TabRules, TabHistory, TabStats, TabQueue}

// ParseTab converts a tab name
func ParseTab(name string) (Tab, error) {
	for _, tab := range Tabs {
		if string(tab) == name {
			return tab, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, name)
}

// ListStatus describes the rule list sub-view
type ListStatus string

const (
	StatusLoading ListStatus = "loading"
	StatusError   ListStatus = "error"
	StatusReady   ListStatus = "ready"
)

// FormMode describes the create/edit form sub-view
type FormMode string

const (
	FormHidden FormMode = ""
	FormCreate FormMode = "create"
	FormEdit   FormMode = "edit"
)

// ErrorInfo is a failure as presented to the user
type ErrorInfo struct {
	Kind      store.Kind         `json:"kind"`
	Op        string             `json:"op,omitempty"`
	Message   string             `json:"message"`
	Fields    []store.FieldError `json:"fields,omitempty"`
	Retryable bool               `json:"retryable"`
}

// NewErrorInfo classifies err for display
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	info := &ErrorInfo{
		Kind:      store.KindOf(err),
		Message:   err.Error(),
		Retryable: store.Retryable(err),
	}

	var (
		valErr    *store.ValidationError
		authErr   *store.AuthorizationError
		netErr    *store.NetworkError
		statusErr *store.StatusError
	)
	switch {
	case errors.As(err, &valErr):
		info.Op = valErr.Op
		info.Message = valErr.Message
		info.Fields = append([]store.FieldError(nil), valErr.Fields...)
	case errors.As(err, &authErr):
		info.Op = authErr.Op
		info.Message = authErr.Message
	case errors.As(err, &netErr):
		info.Op = netErr.Op
	case errors.As(err, &statusErr):
		info.Op = statusErr.Op
		info.Message = statusErr.Message
	}
	if info.Message == "" {
		info.Message = err.Error()
	}
	return info
}

// Field returns the message attached to field, if any
func (e *ErrorInfo) Field(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message, true
		}
	}
	return "", false
}

func (e *ErrorInfo) clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	c.Fields = append([]store.FieldError(nil), e.Fields...)
	return &c
}

// State is a snapshot of everything the console displays.
//
// FormVisible implies ActiveTab is TabRules, and EditingRule is only set
// while the form is visible in edit mode. Loading and Error never hold at
// the same time.
type State struct {
	ActiveTab   Tab        `json:"activeTab"`
	FormVisible bool       `json:"formVisible"`
	FormMode    FormMode   `json:"formMode,omitempty"`
	EditingRule *rule.Rule `json:"editingRule,omitempty"`
	Submitting  bool       `json:"submitting"`
	FormError   *ErrorInfo `json:"formError,omitempty"`

	Rules   []rule.Rule `json:"rules"`
	Total   int         `json:"total"`
	Loading bool        `json:"loading"`
	Error   *ErrorInfo  `json:"error,omitempty"`

	// Notice is a failed action that did not belong to the list or the
	// open form. It is cleared by the next user event.
	Notice *ErrorInfo `json:"notice,omitempty"`

	Queue      *store.QueueStats `json:"queue,omitempty"`
	Throughput stats.Rates       `json:"throughput"`
}

// Status returns the rule list sub-view status
func (s State) Status() ListStatus {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Error != nil:
		return StatusError
	default:
		return StatusReady
	}
}

// Rule returns the loaded rule with id
func (s State) Rule(id string) (rule.Rule, bool) {
	for _, r := range s.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return rule.Rule{}, false
}

// Clone returns a deep copy of s
func (s State) Clone() State {
	c := s
	c.Rules = append(make([]rule.Rule, 0, len(s.Rules)), s.Rules...)
	if s.EditingRule != nil {
		r := *s.EditingRule
		c.EditingRule = &r
	}
	if s.Queue != nil {
		q := *s.Queue
		c.Queue = &q
	}
	c.FormError = s.FormError.clone()
	c.Error = s.Error.clone()
	c.Notice = s.Notice.clone()
	return c
}
