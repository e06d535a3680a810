//file: internal/rule/validator_test.go
package rule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() Draft {
	return Draft{
		Name:    "New lead",
		Enabled: true,
		Trigger: &Conditions{
			Operator: OperatorAnd,
			Items: []Condition{
				{Field: "budget", Operator: OperatorGreaterThan, Value: 1000.0},
			},
		},
		Channel: Channel{
			Type:     ChannelEmail,
			Target:   "sales@example.com",
			Subject:  "New lead from ${name}",
			Template: "Budget: ${budget}",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Draft)
		wantErr  bool
		errField string
	}{
		{
			name:    "valid complete draft",
			mutate:  func(d *Draft) {},
			wantErr: false,
		},
		{
			name:    "no trigger",
			mutate:  func(d *Draft) { d.Trigger = nil },
			wantErr: false,
		},
		{
			name:     "empty name",
			mutate:   func(d *Draft) { d.Name = "  " },
			wantErr:  true,
			errField: "name",
		},
		{
			name:     "missing channel",
			mutate:   func(d *Draft) { d.Channel = Channel{} },
			wantErr:  true,
			errField: "channel",
		},
		{
			name:     "unsupported channel type",
			mutate:   func(d *Draft) { d.Channel.Type = "fax" },
			wantErr:  true,
			errField: "channel.type",
		},
		{
			name:     "missing target",
			mutate:   func(d *Draft) { d.Channel.Target = "" },
			wantErr:  true,
			errField: "channel.target",
		},
		{
			name:     "invalid email target",
			mutate:   func(d *Draft) { d.Channel.Target = "sales@example.com, not-an-address" },
			wantErr:  true,
			errField: "channel.target",
		},
		{
			name: "valid webhook",
			mutate: func(d *Draft) {
				d.Channel = Channel{
					Type:    ChannelWebhook,
					Target:  "https://hooks.example.com/forms",
					Headers: map[string]string{"X-Token": "abc"},
				}
			},
			wantErr: false,
		},
		{
			name: "webhook without scheme",
			mutate: func(d *Draft) {
				d.Channel = Channel{Type: ChannelWebhook, Target: "hooks.example.com/forms"}
			},
			wantErr:  true,
			errField: "channel.target",
		},
		{
			name: "headers on email channel",
			mutate: func(d *Draft) {
				d.Channel.Headers = map[string]string{"X-Token": "abc"}
			},
			wantErr:  true,
			errField: "channel.headers",
		},
		{
			name:     "invalid template variable",
			mutate:   func(d *Draft) { d.Channel.Template = "Hello ${1name}" },
			wantErr:  true,
			errField: "channel.template",
		},
		{
			name:    "empty placeholder is not a variable",
			mutate:  func(d *Draft) { d.Channel.Subject = "Hello ${}" },
			wantErr: false,
		},
		{
			name:     "invalid group operator",
			mutate:   func(d *Draft) { d.Trigger.Operator = "xor" },
			wantErr:  true,
			errField: "trigger.operator",
		},
		{
			name: "invalid condition operator",
			mutate: func(d *Draft) {
				d.Trigger.Items = []Condition{{Field: "budget", Operator: "approx"}}
			},
			wantErr:  true,
			errField: "trigger.items[0]",
		},
		{
			name: "invalid regex in nested group",
			mutate: func(d *Draft) {
				d.Trigger.Groups = []Conditions{{
					Operator: OperatorOr,
					Items:    []Condition{{Field: "email", Operator: OperatorMatches, Value: "("}},
				}}
			},
			wantErr:  true,
			errField: "trigger.groups[0].items[0]",
		},
		{
			name: "regex value not a string",
			mutate: func(d *Draft) {
				d.Trigger.Items = []Condition{{Field: "email", Operator: OperatorMatches, Value: 42}}
			},
			wantErr:  true,
			errField: "trigger.items[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft()
			tt.mutate(&draft)

			err := Validate(&draft)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.errField, verr.Field)
		})
	}
}

func TestValidateNil(t *testing.T) {
	err := Validate(nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "rule", verr.Field)
	assert.Equal(t, "rule: rule cannot be nil", verr.Error())
}

func TestRuleDraftFromValidDraft(t *testing.T) {
	d := validDraft()
	r := Rule{
		ID:          "r-1",
		Name:        d.Name,
		Description: d.Description,
		Enabled:     d.Enabled,
		Trigger:     d.Trigger,
		Channel:     d.Channel,
	}
	assert.Equal(t, d, r.Draft())
}
