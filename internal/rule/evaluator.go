//file: internal/rule/evaluator.go

package rule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Form posts are loosely typed. Numbers often arrive as strings,
// checkboxes and multi-selects as lists, and untouched inputs as empty
// strings. An empty answer counts as a missing field. Text comparisons
// ignore case and surrounding space.

// Trigger is a rule's conditions compiled for matching submissions.
// Patterns are compiled once, so a Trigger can be reused across previews.
type Trigger struct {
	root *group
}

type group struct {
	any    bool // or-group; otherwise every member must hold
	checks []check
	groups []*group
}

type check struct {
	field string
	op    string
	want  interface{}
	re    *regexp.Regexp
}

// CompileTrigger compiles c. A nil or empty trigger matches every
// submission.
func CompileTrigger(c *Conditions) (*Trigger, error) {
	if c == nil {
		return &Trigger{}, nil
	}
	root, err := compileGroup("trigger", c)
	if err != nil {
		return nil, err
	}
	return &Trigger{root: root}, nil
}

func compileGroup(path string, c *Conditions) (*group, error) {
	g := &group{}
	if len(c.Items) == 0 && len(c.Groups) == 0 {
		return g, nil
	}

	switch c.Operator {
	case OperatorAnd:
	case OperatorOr:
		g.any = true
	default:
		return nil, fmt.Errorf("%s: unknown group operator %q", path, c.Operator)
	}

	for i, item := range c.Items {
		ck := check{field: item.Field, op: item.Operator, want: item.Value}
		switch item.Operator {
		case OperatorMatches:
			pattern, ok := item.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%s.items[%d]: pattern must be a string", path, i)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("%s.items[%d]: %w", path, i, err)
			}
			ck.re = re
		case OperatorEquals, OperatorNotEquals, OperatorGreaterThan, OperatorLessThan,
			OperatorGreaterThanOrEqual, OperatorLessThanOrEqual, OperatorExists, OperatorContains:
		default:
			return nil, fmt.Errorf("%s.items[%d]: unknown operator %q", path, i, item.Operator)
		}
		g.checks = append(g.checks, ck)
	}

	for i := range c.Groups {
		sub, err := compileGroup(fmt.Sprintf("%s.groups[%d]", path, i), &c.Groups[i])
		if err != nil {
			return nil, err
		}
		g.groups = append(g.groups, sub)
	}
	return g, nil
}

// Match reports whether a submission satisfies the trigger
func (t *Trigger) Match(values map[string]interface{}) bool {
	if t == nil || t.root == nil {
		return true
	}
	return t.root.match(values)
}

func (g *group) match(values map[string]interface{}) bool {
	for i := range g.checks {
		if g.checks[i].match(values) == g.any {
			return g.any
		}
	}
	for _, sub := range g.groups {
		if sub.match(values) == g.any {
			return g.any
		}
	}
	return !g.any || len(g.checks)+len(g.groups) == 0
}

// Matches compiles the rule's trigger and runs it against values
func (r *Rule) Matches(values map[string]interface{}) (bool, error) {
	t, err := CompileTrigger(r.Trigger)
	if err != nil {
		return false, err
	}
	return t.Match(values), nil
}

func (c *check) match(values map[string]interface{}) bool {
	answers, isList := fieldAnswers(values, c.field)
	if len(answers) == 0 {
		// Only "not equals" holds for a blank or missing field
		return c.op == OperatorNotEquals
	}

	switch c.op {
	case OperatorExists:
		return true
	case OperatorEquals:
		return anyAnswer(answers, func(a interface{}) bool { return sameAnswer(a, c.want) })
	case OperatorNotEquals:
		return !anyAnswer(answers, func(a interface{}) bool { return sameAnswer(a, c.want) })
	case OperatorContains:
		// For a list, contains means the option was selected
		if isList {
			return anyAnswer(answers, func(a interface{}) bool { return sameAnswer(a, c.want) })
		}
		return strings.Contains(foldText(answers[0]), foldText(c.want))
	case OperatorMatches:
		return anyAnswer(answers, func(a interface{}) bool { return c.re.MatchString(convertToString(a)) })
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterThanOrEqual, OperatorLessThanOrEqual:
		return anyAnswer(answers, func(a interface{}) bool {
			cmp, ok := orderAnswers(a, c.want)
			if !ok {
				return false
			}
			switch c.op {
			case OperatorGreaterThan:
				return cmp > 0
			case OperatorLessThan:
				return cmp < 0
			case OperatorGreaterThanOrEqual:
				return cmp >= 0
			default:
				return cmp <= 0
			}
		})
	}
	return false
}

// fieldAnswers flattens a field into its non-blank answers and reports
// whether the field was posted as a list.
func fieldAnswers(values map[string]interface{}, field string) ([]interface{}, bool) {
	value, ok := lookupPath(values, field)
	if !ok {
		return nil, false
	}

	switch v := value.(type) {
	case []interface{}:
		answers := make([]interface{}, 0, len(v))
		for _, item := range v {
			if !blank(item) {
				answers = append(answers, item)
			}
		}
		return answers, true
	case []string:
		answers := make([]interface{}, 0, len(v))
		for _, item := range v {
			if !blank(item) {
				answers = append(answers, item)
			}
		}
		return answers, true
	default:
		if blank(v) {
			return nil, false
		}
		return []interface{}{v}, false
	}
}

func blank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

func anyAnswer(answers []interface{}, fn func(interface{}) bool) bool {
	for _, a := range answers {
		if fn(a) {
			return true
		}
	}
	return false
}

// sameAnswer compares an answer to the expected value. Booleans accept
// checkbox spellings, numbers compare numerically, text ignores case.
func sameAnswer(answer, want interface{}) bool {
	if wb, ok := want.(bool); ok {
		ab, ok := checkedValue(answer)
		return ok && ab == wb
	}
	if an, ok := numberValue(answer); ok {
		if wn, ok := numberValue(want); ok {
			return an == wn
		}
	}
	return foldText(answer) == foldText(want)
}

// orderAnswers compares numerically when both sides are numbers and as
// text when neither is, so ISO dates order correctly. Mixed pairs do not
// compare.
func orderAnswers(answer, want interface{}) (int, bool) {
	an, aNum := numberValue(answer)
	wn, wNum := numberValue(want)
	switch {
	case aNum && wNum:
		switch {
		case an < wn:
			return -1, true
		case an > wn:
			return 1, true
		}
		return 0, true
	case !aNum && !wNum:
		return strings.Compare(strings.TrimSpace(convertToString(answer)), strings.TrimSpace(convertToString(want))), true
	}
	return 0, false
}

func numberValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func checkedValue(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "on", "yes", "1", "checked":
			return true, true
		case "false", "off", "no", "0":
			return false, true
		}
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	}
	return false, false
}

func foldText(v interface{}) string {
	return strings.ToLower(strings.TrimSpace(convertToString(v)))
}
