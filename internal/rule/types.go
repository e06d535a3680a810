//file: internal/rule/types.go
package rule

import (
	"fmt"
	"time"
)

// Rule defines a notification rule as stored by the rule service
type Rule struct {
	ID          string      `json:"id" yaml:"id"`                                       // Opaque identifier assigned by the service
	Name        string      `json:"name" yaml:"name"`                                   // Display name
	Description string      `json:"description,omitempty" yaml:"description,omitempty"` // Optional rule description
	Enabled     bool        `json:"enabled" yaml:"enabled"`                             // Whether the rule is active
	Trigger     *Conditions `json:"trigger,omitempty" yaml:"trigger,omitempty"`         // Optional trigger conditions, nil matches every submission
	Channel     Channel     `json:"channel" yaml:"channel"`                             // Where the notification is delivered
	CreatedAt   time.Time   `json:"createdAt" yaml:"createdAt"`                         // When the rule was created
	UpdatedAt   time.Time   `json:"updatedAt" yaml:"updatedAt"`                         // When the rule was last updated
}

// Draft is the writable part of a rule, sent on create and update
type Draft struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Trigger     *Conditions `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Channel     Channel     `json:"channel" yaml:"channel"`
}

// Draft returns the writable fields of r
func (r Rule) Draft() Draft {
	return Draft{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		Trigger:     r.Trigger,
		Channel:     r.Channel,
	}
}

// Conditions represents a group of conditions with a logical operator
type Conditions struct {
	Operator string       `json:"operator" yaml:"operator"`                 // "and" or "or"
	Items    []Condition  `json:"items" yaml:"items"`                       // Individual conditions
	Groups   []Conditions `json:"groups,omitempty" yaml:"groups,omitempty"` // Nested condition groups
}

// Condition represents a single condition on a form submission field
type Condition struct {
	Field    string      `json:"field" yaml:"field"`       // Submission field name
	Operator string      `json:"operator" yaml:"operator"` // Comparison operator
	Value    interface{} `json:"value" yaml:"value"`       // Value to compare against
}

// Channel is the delivery target configuration of a rule
type Channel struct {
	Type     string            `json:"type" yaml:"type"`                           // email, webhook, slack or line
	Target   string            `json:"target" yaml:"target"`                       // Address, URL or channel id
	Subject  string            `json:"subject,omitempty" yaml:"subject,omitempty"` // Template for the subject line
	Template string            `json:"template" yaml:"template"`                   // Template for the message body
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // Optional webhook headers
}

// ValidationError is a field level rule validation failure
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Channel types
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
	ChannelLine    = "line"
)

// ValidChannels contains all supported channel types
var ValidChannels = map[string]bool{
	ChannelEmail:   true,
	ChannelWebhook: true,
	ChannelSlack:   true,
	ChannelLine:    true,
}

// Constants for condition operators
const (
	OperatorAnd = "and"
	OperatorOr  = "or"

	// Comparison operators
	OperatorEquals             = "eq"
	OperatorNotEquals          = "neq"
	OperatorGreaterThan        = "gt"
	OperatorLessThan           = "lt"
	OperatorGreaterThanOrEqual = "gte"
	OperatorLessThanOrEqual    = "lte"
	OperatorExists             = "exists"
	OperatorContains           = "contains"
	OperatorMatches            = "matches" // Regex matching
)

// ValidOperators contains all valid comparison operators
var ValidOperators = map[string]bool{
	OperatorEquals:             true,
	OperatorNotEquals:          true,
	OperatorGreaterThan:        true,
	OperatorLessThan:           true,
	OperatorGreaterThanOrEqual: true,
	OperatorLessThanOrEqual:    true,
	OperatorExists:             true,
	OperatorContains:           true,
	OperatorMatches:            true,
}
