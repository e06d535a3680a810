package rule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Preview is the outcome of running a rule against a sample submission
type Preview struct {
	Matched bool   `json:"matched"`
	Channel string `json:"channel"`
	Target  string `json:"target"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

// PreviewSubmission evaluates the trigger and, on a match, renders the
// channel templates with the submission values. A trigger that does not
// compile is an error.
func PreviewSubmission(r *Rule, values map[string]interface{}) (Preview, error) {
	matched, err := r.Matches(values)
	if err != nil {
		return Preview{}, fmt.Errorf("rule %s has an invalid trigger: %w", r.ID, err)
	}

	p := Preview{
		Channel: r.Channel.Type,
		Target:  r.Channel.Target,
		Matched: matched,
	}
	if !p.Matched {
		return p, nil
	}

	p.Subject = Render(r.Channel.Subject, values)
	p.Body = Render(r.Channel.Template, values)
	return p, nil
}

// Render substitutes ${path.to.value} placeholders with submission values.
// Placeholders without a value are left as written.
func Render(template string, values map[string]interface{}) string {
	if !strings.Contains(template, "${") {
		return template
	}

	result := template
	for _, match := range templateVarPattern.FindAllStringSubmatch(template, -1) {
		if len(match) != 2 {
			continue
		}

		value, ok := lookupPath(values, match[1])
		if !ok {
			continue
		}
		result = strings.ReplaceAll(result, match[0], convertToString(value))
	}

	return result
}

// lookupPath retrieves a value from nested maps using a dotted path
func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data

	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]interface{}:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			current = next
		case map[interface{}]interface{}:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}

	return current, true
}

// convertToString converts a value to its string representation
func convertToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	case map[string]interface{}, []interface{}:
		// For complex types, convert to JSON
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(jsonBytes)
	default:
		return fmt.Sprintf("%v", v)
	}
}
