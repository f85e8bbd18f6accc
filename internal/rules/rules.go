// Package rules defines the rule document model and its loading and
// validation. A document is parsed once per run and is immutable after that.
package rules

import (
	"fmt"
	"time"
)

// Predicate combines the results of a document's conditions.
type Predicate string

// Supported predicates.
const (
	PredicateAny Predicate = "ANY"
	PredicateAll Predicate = "ALL"
)

// Field identifies the message attribute a condition tests.
type Field string

// Supported fields.
const (
	FieldFrom         Field = "From"
	FieldTo           Field = "To"
	FieldSubject      Field = "Subject"
	FieldReceivedDate Field = "ReceivedDate"
	FieldLabel        Field = "Label"
)

// Condition is the comparison operator of a rule condition.
type Condition string

// Supported conditions. String conditions compare case-insensitively and
// accept a list of candidate values (any-of semantics). Date conditions
// apply only to ReceivedDate.
const (
	Contains       Condition = "Contains"
	NotContains    Condition = "NotContains"
	Equals         Condition = "Equals"
	NotEquals      Condition = "NotEquals"
	StartsWith     Condition = "StartsWith"
	EndsWith       Condition = "EndsWith"
	LessThan       Condition = "LessThan"
	GreaterThan    Condition = "GreaterThan"
	Year           Condition = "Year"
	RelativeDays   Condition = "RelativeDays"
	RelativeMonths Condition = "RelativeMonths"
)

// ActionKind identifies a mailbox mutation.
type ActionKind string

// Supported action kinds.
const (
	MarkRead      ActionKind = "MarkRead"
	MarkUnread    ActionKind = "MarkUnread"
	Archive       ActionKind = "Archive"
	AddLabel      ActionKind = "AddLabel"
	MoveToFolder  ActionKind = "MoveToFolder"
	MarkSpam      ActionKind = "MarkSpam"
	MarkImportant ActionKind = "MarkImportant"
)

// Action is one mailbox mutation. Name carries the label or folder for
// AddLabel and MoveToFolder and is empty for the other kinds.
type Action struct {
	Kind ActionKind
	Name string
}

// String returns the action in "Kind" or "Kind(Name)" form.
func (a Action) String() string {
	if a.Name == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Name)
}

// RuleCondition is one atomic test plus the actions it triggers on match.
// Exactly one of Values, Amount, or Instant is meaningful, determined by
// Condition: Values for string conditions, Amount for Year/RelativeDays/
// RelativeMonths, Instant for LessThan/GreaterThan.
type RuleCondition struct {
	Field     Field
	Condition Condition
	Values    []string
	Amount    int
	Instant   time.Time
	Actions   []Action
}

// Document is a validated rule document.
type Document struct {
	Predicate Predicate
	Rules     []RuleCondition
}

// ConfigError reports a malformed rule document. It is fatal to loading
// that document; no message is processed against a document that fails
// validation.
type ConfigError struct {
	Rule    int // zero-based rule index, -1 for document-level errors
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Rule < 0 {
		return fmt.Sprintf("rule document: %s", e.Message)
	}
	return fmt.Sprintf("rule %d: %s", e.Rule, e.Message)
}

func docErr(format string, args ...any) *ConfigError {
	return &ConfigError{Rule: -1, Message: fmt.Sprintf(format, args...)}
}

func ruleErr(rule int, format string, args ...any) *ConfigError {
	return &ConfigError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// valueDomain classifies what a field holds or what a condition compares.
type valueDomain int

const (
	domainString valueDomain = iota
	domainDate
)

var fieldDomains = map[Field]valueDomain{
	FieldFrom:         domainString,
	FieldTo:           domainString,
	FieldSubject:      domainString,
	FieldLabel:        domainString,
	FieldReceivedDate: domainDate,
}

var conditionDomains = map[Condition]valueDomain{
	Contains:       domainString,
	NotContains:    domainString,
	Equals:         domainString,
	NotEquals:      domainString,
	StartsWith:     domainString,
	EndsWith:       domainString,
	LessThan:       domainDate,
	GreaterThan:    domainDate,
	Year:           domainDate,
	RelativeDays:   domainDate,
	RelativeMonths: domainDate,
}

// Compatible reports whether the condition can be applied to the field.
func Compatible(f Field, c Condition) bool {
	fd, ok := fieldDomains[f]
	if !ok {
		return false
	}
	cd, ok := conditionDomains[c]
	if !ok {
		return false
	}
	return fd == cd
}
