package engine

import (
	"fmt"
	"strings"
	"time"

	"mailrules/internal/rules"
)

// EvaluationError reports a condition that cannot be applied to its field's
// value type. The offending condition is skipped (treated as false); the
// run is not aborted.
type EvaluationError struct {
	Field     rules.Field
	Condition rules.Condition
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("condition %s not applicable to field %s", e.Condition, e.Field)
}

// stringOp tests one field string against a list of candidate values.
// Candidates use any-of semantics: the op is true if at least one
// candidate satisfies it. All comparisons are case-insensitive.
type stringOp func(text string, candidates []string) bool

// dateOp tests a field timestamp. now is the injected reference time for
// relative conditions.
type dateOp func(ts time.Time, rc rules.RuleCondition, now time.Time) bool

var stringOps = map[rules.Condition]stringOp{
	rules.Contains:    anyCandidate(strings.Contains),
	rules.NotContains: negate(anyCandidate(strings.Contains)),
	rules.Equals:      anyCandidate(func(text, cand string) bool { return text == cand }),
	rules.NotEquals:   negate(anyCandidate(func(text, cand string) bool { return text == cand })),
	rules.StartsWith:  anyCandidate(strings.HasPrefix),
	rules.EndsWith:    anyCandidate(strings.HasSuffix),
}

var dateOps = map[rules.Condition]dateOp{
	rules.Year: func(ts time.Time, rc rules.RuleCondition, _ time.Time) bool {
		return ts.Year() == rc.Amount
	},
	rules.RelativeDays: func(ts time.Time, rc rules.RuleCondition, now time.Time) bool {
		return !ts.After(now.AddDate(0, 0, -rc.Amount))
	},
	rules.RelativeMonths: func(ts time.Time, rc rules.RuleCondition, now time.Time) bool {
		return !ts.After(now.AddDate(0, -rc.Amount, 0))
	},
	rules.LessThan: func(ts time.Time, rc rules.RuleCondition, _ time.Time) bool {
		return ts.Before(rc.Instant)
	},
	rules.GreaterThan: func(ts time.Time, rc rules.RuleCondition, _ time.Time) bool {
		return ts.After(rc.Instant)
	},
}

func anyCandidate(match func(text, candidate string) bool) stringOp {
	return func(text string, candidates []string) bool {
		lowered := strings.ToLower(text)
		for _, cand := range candidates {
			if match(lowered, strings.ToLower(cand)) {
				return true
			}
		}
		return false
	}
}

func negate(op stringOp) stringOp {
	return func(text string, candidates []string) bool {
		return !op(text, candidates)
	}
}

// Evaluate runs one rule condition against an extracted field map. It is a
// pure function of its inputs; now is the reference time for relative date
// conditions. Document validation rejects incompatible pairs up front, but
// a mismatch still surfaces here as *EvaluationError for hand-built
// conditions.
func Evaluate(fields FieldMap, rc rules.RuleCondition, now time.Time) (bool, error) {
	if op, ok := dateOps[rc.Condition]; ok {
		if rc.Field != rules.FieldReceivedDate {
			return false, &EvaluationError{Field: rc.Field, Condition: rc.Condition}
		}
		return op(fields.ReceivedAt, rc, now), nil
	}

	op, ok := stringOps[rc.Condition]
	if !ok {
		return false, &EvaluationError{Field: rc.Field, Condition: rc.Condition}
	}

	switch rc.Field {
	case rules.FieldFrom:
		return op(fields.From, rc.Values), nil
	case rules.FieldTo:
		return op(fields.To, rc.Values), nil
	case rules.FieldSubject:
		return op(fields.Subject, rc.Values), nil
	case rules.FieldLabel:
		return evalLabelSet(rc, fields.Labels), nil
	default:
		return false, &EvaluationError{Field: rc.Field, Condition: rc.Condition}
	}
}

// positiveFor maps negated string conditions to their positive base.
var positiveFor = map[rules.Condition]rules.Condition{
	rules.NotContains: rules.Contains,
	rules.NotEquals:   rules.Equals,
}

// evalLabelSet applies a string condition across the label set. A positive
// condition matches if any label satisfies it; a negated condition matches
// only if no label satisfies its positive base.
func evalLabelSet(rc rules.RuleCondition, labels []string) bool {
	base, negated := rc.Condition, false
	if pos, ok := positiveFor[base]; ok {
		base, negated = pos, true
	}
	op := stringOps[base]

	anyMatch := false
	for _, label := range labels {
		if op(label, rc.Values) {
			anyMatch = true
			break
		}
	}
	if negated {
		return !anyMatch
	}
	return anyMatch
}

// Combine folds per-condition results under the document predicate.
// ALL is true iff every result is true (vacuously true on empty input);
// ANY is true iff at least one is.
func Combine(results []bool, predicate rules.Predicate) bool {
	if predicate == rules.PredicateAny {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}
