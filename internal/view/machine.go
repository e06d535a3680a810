package view

import (
	"rule-console/internal/rule"
	"rule-console/internal/stats"
	"rule-console/internal/store"
)

// Options configures a Machine
type Options struct {
	// KeepEditsOnTabSwitch makes switching tabs with the form open fail
	// with ErrUnsavedEdits. By default the form is hidden and its edits
	// are discarded.
	KeepEditsOnTabSwitch bool
	Guard                Guard
}

// Machine applies console transitions. It is not safe for concurrent use;
// the controller owning it is the single writer.
type Machine struct {
	state        State
	guard        Guard
	keepEdits    bool
	loadSeq      uint64
}

// Submission describes the write a submit must perform
type Submission struct {
	Mode   FormMode
	RuleID string
}

// NewMachine creates a machine in its mount state: rules tab, empty list,
// loading.
func NewMachine(opts Options) *Machine {
	guard := opts.Guard
	if guard == nil {
		guard = DenyAll
	}
	return &Machine{
		state: State{
			ActiveTab: TabRules,
			Rules:     []rule.Rule{},
			Loading:   true,
		},
		guard:        guard,
		keepEdits:    opts.KeepEditsOnTabSwitch,
	}
}

// State returns a copy of the current state
func (m *Machine) State() State {
	return m.state.Clone()
}

func (m *Machine) allow(action Action) error {
	if !m.guard(action) {
		return &DeniedError{Action: action}
	}
	return nil
}

func (m *Machine) hideForm() {
	m.state.FormVisible = false
	m.state.FormMode = FormHidden
	m.state.EditingRule = nil
	m.state.FormError = nil
}

// SwitchTab activates tab. The queue tab requires ActionViewQueue.
func (m *Machine) SwitchTab(tab Tab) error {
	if _, err := ParseTab(string(tab)); err != nil {
		return err
	}
	if tab == TabQueue {
		if err := m.allow(ActionViewQueue); err != nil {
			return err
		}
	}
	if m.state.FormVisible && m.keepEdits {
		return ErrUnsavedEdits
	}

	m.state.Notice = nil
	m.hideForm()
	m.state.ActiveTab = tab
	return nil
}

// RequestCreate opens an empty form on the rules tab
func (m *Machine) RequestCreate() error {
	if err := m.allow(ActionCreate); err != nil {
		return err
	}
	if m.state.Submitting {
		return ErrSubmitPending
	}

	m.state.Notice = nil
	m.hideForm()
	m.state.ActiveTab = TabRules
	m.state.FormVisible = true
	m.state.FormMode = FormCreate
	return nil
}

// RequestEdit opens the form for r on the rules tab
func (m *Machine) RequestEdit(r rule.Rule) error {
	if err := m.allow(ActionEdit); err != nil {
		return err
	}
	if m.state.Submitting {
		return ErrSubmitPending
	}

	m.state.Notice = nil
	m.hideForm()
	m.state.ActiveTab = TabRules
	m.state.FormVisible = true
	m.state.FormMode = FormEdit
	m.state.EditingRule = &r
	return nil
}

// Cancel hides the form. A submit already sent still completes and its
// failure, if any, becomes a notice.
func (m *Machine) Cancel() error {
	if !m.state.FormVisible {
		return ErrNoForm
	}
	m.state.Notice = nil
	m.hideForm()
	return nil
}

// BeginDelete checks that the caller may delete rules
func (m *Machine) BeginDelete() error {
	if err := m.allow(ActionDelete); err != nil {
		return err
	}
	m.state.Notice = nil
	return nil
}

// ActionFailed records a failed action as a notice without touching the
// list error.
func (m *Machine) ActionFailed(err error) {
	m.state.Notice = NewErrorInfo(err)
}

// BeginSubmit marks the open form as submitting and returns the write to
// perform.
func (m *Machine) BeginSubmit() (Submission, error) {
	if !m.state.FormVisible {
		return Submission{}, ErrNoForm
	}
	if m.state.Submitting {
		return Submission{}, ErrSubmitPending
	}

	sub := Submission{Mode: m.state.FormMode}
	action := ActionCreate
	if sub.Mode == FormEdit {
		action = ActionEdit
		sub.RuleID = m.state.EditingRule.ID
	}
	if err := m.allow(action); err != nil {
		return Submission{}, err
	}

	m.state.Notice = nil
	m.state.FormError = nil
	m.state.Submitting = true
	return sub, nil
}

// SubmitSucceeded closes the form. The caller reloads the list.
func (m *Machine) SubmitSucceeded() {
	m.state.Submitting = false
	m.hideForm()
}

// SubmitFailed keeps the form open with err attached. If the form was
// closed in the meantime the failure becomes a notice.
func (m *Machine) SubmitFailed(err error) {
	m.state.Submitting = false
	if m.state.FormVisible {
		m.state.FormError = NewErrorInfo(err)
		return
	}
	m.state.Notice = NewErrorInfo(err)
}

// BeginLoad enters the loading state and returns the load's sequence
// number. Only the latest load may complete.
func (m *Machine) BeginLoad() uint64 {
	m.loadSeq++
	m.state.Loading = true
	m.state.Error = nil
	return m.loadSeq
}

// Retry starts a new load from the error state
func (m *Machine) Retry() (uint64, error) {
	if m.state.Status() != StatusError {
		return 0, ErrNotInError
	}
	m.state.Notice = nil
	return m.BeginLoad(), nil
}

// ListLoaded replaces the rule list. It reports false and changes nothing
// when seq belongs to a superseded load.
func (m *Machine) ListLoaded(seq uint64, list *store.RuleList) bool {
	if seq != m.loadSeq || !m.state.Loading {
		return false
	}
	m.state.Loading = false
	m.state.Error = nil
	m.state.Rules = append(make([]rule.Rule, 0, len(list.Rules)), list.Rules...)
	m.state.Total = list.Total
	return true
}

// ListFailed moves the list into the error state. Stale loads are ignored
// as in ListLoaded.
func (m *Machine) ListFailed(seq uint64, err error) bool {
	if seq != m.loadSeq || !m.state.Loading {
		return false
	}
	m.state.Loading = false
	m.state.Error = NewErrorInfo(err)
	return true
}

// StatsLoaded replaces the queue snapshot. Failed stats fetches have no
// transition; the last snapshot stays.
func (m *Machine) StatsLoaded(snapshot store.QueueStats, rates stats.Rates) {
	m.state.Queue = &snapshot
	m.state.Throughput = rates
}
