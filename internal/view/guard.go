package view

import (
	"errors"
	"fmt"
)

// Action is a privileged transition
type Action string

const (
	ActionCreate    Action = "create"
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionViewQueue Action = "view_queue"
)

// Guard decides whether the current caller may perform action. Every
// privileged transition consults it.
type Guard func(action Action) bool

// AllowAll permits every action
func AllowAll(Action) bool { return true }

// DenyAll rejects every action
func DenyAll(Action) bool { return false }

var (
	ErrForbidden     = errors.New("not permitted")
	ErrUnknownTab    = errors.New("unknown tab")
	ErrNoForm        = errors.New("no form is open")
	ErrSubmitPending = errors.New("a submit is already in progress")
	ErrUnsavedEdits  = errors.New("form has unsaved edits")
	ErrNotInError    = errors.New("rule list is not in an error state")
)

// DeniedError is returned when the guard rejects a transition
type DeniedError struct {
	Action Action
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, ErrForbidden)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrForbidden
}

// Reason returns a short label for a rejected transition
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnknownTab):
		return "unknown_tab"
	case errors.Is(err, ErrNoForm):
		return "no_form"
	case errors.Is(err, ErrSubmitPending):
		return "submit_pending"
	case errors.Is(err, ErrUnsavedEdits):
		return "unsaved_edits"
	case errors.Is(err, ErrNotInError):
		return "not_in_error"
	default:
		return "other"
	}
}
