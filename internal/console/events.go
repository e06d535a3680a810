package console

import (
	"rule-console/internal/rule"
	"rule-console/internal/view"
)

// Event is a user or timer input to the console
type Event interface {
	Name() string
}

// SwitchTab activates a tab
type SwitchTab struct {
	Tab view.Tab
}

// RequestCreate opens the create form
type RequestCreate struct{}

// RequestEdit opens the edit form for Rule, or for the loaded rule with
// RuleID when Rule is nil.
type RequestEdit struct {
	RuleID string
	Rule   *rule.Rule
}

// RequestDelete deletes a rule after confirmation
type RequestDelete struct {
	RuleID string
}

// SubmitForm creates or updates a rule from the open form
type SubmitForm struct {
	Draft rule.Draft
}

// Cancel closes the form without saving
type Cancel struct{}

// Retry reloads the rule list after a failed load
type Retry struct{}

// Refresh reloads the rule list
type Refresh struct{}

// Tick fetches queue stats now, unless a fetch is already running
type Tick struct{}

func (SwitchTab) Name() string     { return "switch_tab" }
func (RequestCreate) Name() string { return "request_create" }
func (RequestEdit) Name() string   { return "request_edit" }
func (RequestDelete) Name() string { return "request_delete" }
func (SubmitForm) Name() string    { return "submit_form" }
func (Cancel) Name() string        { return "cancel" }
func (Retry) Name() string         { return "retry" }
func (Refresh) Name() string       { return "refresh" }
func (Tick) Name() string          { return "tick" }
