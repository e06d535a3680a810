//file: internal/rule/validator.go
package rule

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

var (
	// validVariablePattern matches valid template variable names:
	// - Must start with a letter or underscore
	// - Can contain letters, numbers, underscores
	// - Can have dot notation for nested fields
	validVariablePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

	templateVarPattern = regexp.MustCompile(`\${([^}]+)}`)
)

// Validate checks a draft before it is sent to the rule service
func Validate(draft *Draft) error {
	if draft == nil {
		return &ValidationError{
			Field:   "rule",
			Message: "rule cannot be nil",
		}
	}

	if strings.TrimSpace(draft.Name) == "" {
		return &ValidationError{
			Field:   "name",
			Message: "required",
		}
	}

	if err := validateChannel(&draft.Channel); err != nil {
		return err
	}

	if draft.Trigger != nil {
		if err := validateConditions(draft.Trigger); err != nil {
			return err
		}
	}

	return nil
}

// validateChannel checks if a channel configuration is valid
func validateChannel(ch *Channel) error {
	if ch.Type == "" {
		return &ValidationError{
			Field:   "channel",
			Message: "required",
		}
	}

	if !ValidChannels[ch.Type] {
		return &ValidationError{
			Field:   "channel.type",
			Message: fmt.Sprintf("unsupported channel type: %s", ch.Type),
		}
	}

	if ch.Target == "" {
		return &ValidationError{
			Field:   "channel.target",
			Message: "required",
		}
	}

	switch ch.Type {
	case ChannelEmail:
		for _, addr := range strings.Split(ch.Target, ",") {
			if _, err := mail.ParseAddress(strings.TrimSpace(addr)); err != nil {
				return &ValidationError{
					Field:   "channel.target",
					Message: fmt.Sprintf("invalid email address: %s", strings.TrimSpace(addr)),
				}
			}
		}
	case ChannelWebhook:
		u, err := url.Parse(ch.Target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{
				Field:   "channel.target",
				Message: "webhook target must be an http(s) URL",
			}
		}
	}

	if len(ch.Headers) > 0 && ch.Type != ChannelWebhook {
		return &ValidationError{
			Field:   "channel.headers",
			Message: "headers are only supported for webhook channels",
		}
	}

	// Validate subject template
	if err := validateTemplate(ch.Subject); err != nil {
		return &ValidationError{
			Field:   "channel.subject",
			Message: err.Error(),
		}
	}

	// Validate body template
	if err := validateTemplate(ch.Template); err != nil {
		return &ValidationError{
			Field:   "channel.template",
			Message: err.Error(),
		}
	}

	return nil
}

// validateConditions validates a condition group recursively
func validateConditions(conditions *Conditions) error {
	return validateConditionsAt("trigger", conditions)
}

func validateConditionsAt(prefix string, conditions *Conditions) error {
	// Validate operator
	switch conditions.Operator {
	case OperatorAnd, OperatorOr:
		// Valid operators
	default:
		return &ValidationError{
			Field:   prefix + ".operator",
			Message: fmt.Sprintf("invalid operator: %s", conditions.Operator),
		}
	}

	// Validate individual conditions
	for i, condition := range conditions.Items {
		if err := validateCondition(&condition); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("%s.items[%d]", prefix, i),
				Message: err.Error(),
			}
		}
	}

	// Validate nested groups
	for i := range conditions.Groups {
		if err := validateConditionsAt(fmt.Sprintf("%s.groups[%d]", prefix, i), &conditions.Groups[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateCondition validates a single condition
func validateCondition(condition *Condition) error {
	if condition.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}

	if !ValidOperators[condition.Operator] {
		return fmt.Errorf("invalid operator: %s", condition.Operator)
	}

	// Validate pattern for regex operator
	if condition.Operator == OperatorMatches {
		if pattern, ok := condition.Value.(string); ok {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid regex pattern: %s", err)
			}
		} else {
			return fmt.Errorf("regex pattern must be a string")
		}
	}

	return nil
}

// validateTemplate checks if a template string has valid variable references
func validateTemplate(template string) error {
	if template == "" {
		return nil
	}

	matches := templateVarPattern.FindAllStringSubmatch(template, -1)
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}

		if !isValidVariableName(match[1]) {
			return fmt.Errorf("invalid variable name: %s", match[1])
		}
	}

	return nil
}

// isValidVariableName checks if a variable name is valid
func isValidVariableName(name string) bool {
	return validVariablePattern.MatchString(name)
}
