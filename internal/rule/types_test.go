//file: internal/rule/types_test.go

package rule

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestRuleDraft(t *testing.T) {
	r := Rule{
		ID:          "r1",
		Name:        "Contact form",
		Description: "Mail the team",
		Enabled:     true,
		Trigger: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{Field: "topic", Operator: OperatorEquals, Value: "sales"}},
		},
		Channel:   Channel{Type: ChannelEmail, Target: "sales@example.com", Template: "${message}"},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}

	want := Draft{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     true,
		Trigger:     r.Trigger,
		Channel:     r.Channel,
	}
	if got := r.Draft(); !reflect.DeepEqual(got, want) {
		t.Errorf("Draft() = %+v, want %+v", got, want)
	}
}

func TestRuleDecodeServicePayload(t *testing.T) {
	payload := `{
		"id": "r9",
		"name": "Large orders",
		"enabled": true,
		"trigger": {
			"operator": "or",
			"items": [{"field": "total", "operator": "gt", "value": 1000}],
			"groups": [{"operator": "and", "items": [{"field": "vip", "operator": "eq", "value": true}]}]
		},
		"channel": {"type": "webhook", "target": "https://hooks.example.com", "template": "${total}", "headers": {"X-Token": "abc"}},
		"createdAt": "2024-05-01T10:00:00Z",
		"updatedAt": "2024-05-02T10:00:00Z"
	}`

	var r Rule
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if r.Trigger == nil || len(r.Trigger.Groups) != 1 {
		t.Fatalf("expected one nested trigger group, got %+v", r.Trigger)
	}
	if got := r.Channel.Headers["X-Token"]; got != "abc" {
		t.Errorf("header X-Token = %q, want abc", got)
	}
	if !r.UpdatedAt.After(r.CreatedAt) {
		t.Errorf("updatedAt %v should be after createdAt %v", r.UpdatedAt, r.CreatedAt)
	}
	matched, err := r.Matches(map[string]interface{}{"total": 1500.0})
	if err != nil {
		t.Fatalf("Matches() error = %v", err)
	}
	if !matched {
		t.Error("decoded trigger should match a large order")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "channel.target", Message: "required"}
	if got, want := err.Error(), "channel.target: required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
