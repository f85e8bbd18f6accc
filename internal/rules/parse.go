package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// rawDocument mirrors the on-disk JSON shape before validation.
type rawDocument struct {
	Predicate string    `json:"predicate"`
	Rules     []rawRule `json:"rules"`
}

type rawRule struct {
	Field     string          `json:"field"`
	Condition string          `json:"condition"`
	Value     json.RawMessage `json:"value"`
	Action    json.RawMessage `json:"action"`
}

// rawAction is the object form of an action entry.
type rawAction struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Folder string `json:"folder"`
}

// Load reads and validates a rule document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a rule document. Any shape or type problem
// is returned as a *ConfigError so that callers can report it before any
// message is processed.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, docErr("invalid JSON: %v", err)
	}

	predicate, err := parsePredicate(raw.Predicate)
	if err != nil {
		return nil, err
	}
	if len(raw.Rules) == 0 {
		return nil, docErr("rules must not be empty")
	}

	doc := &Document{Predicate: predicate}
	for i, rr := range raw.Rules {
		rc, err := parseRule(i, rr)
		if err != nil {
			return nil, err
		}
		doc.Rules = append(doc.Rules, rc)
	}
	return doc, nil
}

func parsePredicate(s string) (Predicate, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ANY":
		return PredicateAny, nil
	case "ALL":
		return PredicateAll, nil
	default:
		return "", docErr("unknown predicate %q, use ANY or ALL", s)
	}
}

func parseRule(index int, rr rawRule) (RuleCondition, error) {
	var rc RuleCondition

	field, ok := ParseField(rr.Field)
	if !ok {
		return rc, ruleErr(index, "unknown field %q", rr.Field)
	}
	condition, ok := ParseCondition(rr.Condition)
	if !ok {
		return rc, ruleErr(index, "unknown condition %q", rr.Condition)
	}
	if !Compatible(field, condition) {
		return rc, ruleErr(index, "condition %s not applicable to field %s", condition, field)
	}

	rc.Field = field
	rc.Condition = condition

	if err := parseValue(index, &rc, rr.Value); err != nil {
		return rc, err
	}

	actions, err := parseActions(index, rr.Action)
	if err != nil {
		return rc, err
	}
	rc.Actions = actions
	return rc, nil
}

// ParseField resolves a field name, tolerating case and separator
// differences ("Received Date", "received_date", "ReceivedDate").
func ParseField(s string) (Field, bool) {
	switch normalizeName(s) {
	case "from", "sender":
		return FieldFrom, true
	case "to", "recipient":
		return FieldTo, true
	case "subject":
		return FieldSubject, true
	case "receiveddate", "received", "date":
		return FieldReceivedDate, true
	case "label", "labels":
		return FieldLabel, true
	default:
		return "", false
	}
}

// ParseCondition resolves a condition name, tolerating case and separator
// differences.
func ParseCondition(s string) (Condition, bool) {
	switch normalizeName(s) {
	case "contains":
		return Contains, true
	case "notcontains", "doesnotcontain":
		return NotContains, true
	case "equals", "is":
		return Equals, true
	case "notequals", "isnot":
		return NotEquals, true
	case "startswith":
		return StartsWith, true
	case "endswith":
		return EndsWith, true
	case "lessthan", "before":
		return LessThan, true
	case "greaterthan", "after":
		return GreaterThan, true
	case "year":
		return Year, true
	case "relativedays", "olderthandays":
		return RelativeDays, true
	case "relativemonths", "olderthanmonths":
		return RelativeMonths, true
	default:
		return "", false
	}
}

// ParseActionKind resolves an action name, including the legacy spellings
// of the original rule files ("MarkAsRead", "MoveTo", "CreateLabel").
func ParseActionKind(s string) (ActionKind, bool) {
	switch normalizeName(s) {
	case "markread", "markasread":
		return MarkRead, true
	case "markunread", "markasunread":
		return MarkUnread, true
	case "archive":
		return Archive, true
	case "addlabel", "createlabel", "applylabel":
		return AddLabel, true
	case "movetofolder", "moveto":
		return MoveToFolder, true
	case "markspam", "markasspam":
		return MarkSpam, true
	case "markimportant", "markasimportant":
		return MarkImportant, true
	default:
		return "", false
	}
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// instantLayouts are accepted for LessThan/GreaterThan reference values.
var instantLayouts = []string{time.RFC3339, "2006-01-02"}

func parseValue(index int, rc *RuleCondition, raw json.RawMessage) error {
	if len(raw) == 0 {
		return ruleErr(index, "condition %s requires a value", rc.Condition)
	}

	switch conditionDomains[rc.Condition] {
	case domainString:
		values, err := decodeStringList(raw)
		if err != nil {
			return ruleErr(index, "condition %s wants a string or list of strings: %v", rc.Condition, err)
		}
		if len(values) == 0 {
			return ruleErr(index, "condition %s requires at least one value", rc.Condition)
		}
		rc.Values = values
		return nil
	case domainDate:
		switch rc.Condition {
		case Year, RelativeDays, RelativeMonths:
			n, err := decodeInt(raw)
			if err != nil {
				return ruleErr(index, "condition %s wants an integer value: %v", rc.Condition, err)
			}
			if n < 0 {
				return ruleErr(index, "condition %s wants a non-negative value, got %d", rc.Condition, n)
			}
			rc.Amount = n
			return nil
		default: // LessThan, GreaterThan
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return ruleErr(index, "condition %s wants a timestamp string: %v", rc.Condition, err)
			}
			for _, layout := range instantLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					rc.Instant = t.UTC()
					return nil
				}
			}
			return ruleErr(index, "condition %s: cannot parse timestamp %q", rc.Condition, s)
		}
	}
	return ruleErr(index, "condition %s has no value domain", rc.Condition)
}

func decodeStringList(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseActions(index int, raw json.RawMessage) ([]Action, error) {
	if len(raw) == 0 {
		return nil, ruleErr(index, "rule has no action")
	}

	entries, err := splitActionEntries(raw)
	if err != nil {
		return nil, ruleErr(index, "invalid action: %v", err)
	}
	if len(entries) == 0 {
		return nil, ruleErr(index, "rule has no action")
	}

	var actions []Action
	for _, entry := range entries {
		a, err := parseActionEntry(entry)
		if err != nil {
			return nil, ruleErr(index, "%v", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// splitActionEntries accepts a single entry or a list of entries, where an
// entry is either a bare string or an object.
func splitActionEntries(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	return []json.RawMessage{raw}, nil
}

func parseActionEntry(raw json.RawMessage) (Action, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		kind, ok := ParseActionKind(name)
		if !ok {
			return Action{}, fmt.Errorf("unknown action %q", name)
		}
		if kind == AddLabel || kind == MoveToFolder {
			return Action{}, fmt.Errorf("action %s requires a label or folder name", kind)
		}
		return Action{Kind: kind}, nil
	}

	var obj rawAction
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Action{}, fmt.Errorf("action must be a string or an object: %v", err)
	}
	kind, ok := ParseActionKind(obj.Type)
	if !ok {
		return Action{}, fmt.Errorf("unknown action %q", obj.Type)
	}

	switch kind {
	case AddLabel:
		if obj.Label == "" {
			return Action{}, fmt.Errorf("action %s requires a label", kind)
		}
		return Action{Kind: kind, Name: obj.Label}, nil
	case MoveToFolder:
		name := obj.Folder
		if name == "" {
			name = obj.Label
		}
		if name == "" {
			return Action{}, fmt.Errorf("action %s requires a folder", kind)
		}
		return Action{Kind: kind, Name: name}, nil
	default:
		return Action{Kind: kind}, nil
	}
}
