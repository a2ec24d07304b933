package rules

import "fmt"

// RuleError reports a rule element that could not be compiled. It carries
// what an operator needs to find and fix the rule: the widget, the rule's
// raw XML and whatever script text had been produced before the failure.
type RuleError struct {
	WidgetID string
	Property string
	Rule     string // rule name attribute
	Source   string // raw XML of the rule element
	Partial  string // script text built before the failure
	Err      error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("widget %s rule '%s' for property '%s': %v", e.WidgetID, e.Rule, e.Property, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
