package engine

import (
	"errors"
	"testing"
	"time"

	"mailrules/internal/model"
	"mailrules/internal/rules"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func strCond(field rules.Field, cond rules.Condition, values ...string) rules.RuleCondition {
	return rules.RuleCondition{Field: field, Condition: cond, Values: values}
}

func TestEvaluateStringConditions(t *testing.T) {
	fields := FieldMap{
		From:    "NoReply@Quora.com",
		To:      "me@example.com",
		Subject: "Weekly digest: Go questions",
		Labels:  []string{"INBOX", "Newsletters"},
	}

	tests := []struct {
		name string
		cond rules.RuleCondition
		want bool
	}{
		{"contains match", strCond(rules.FieldFrom, rules.Contains, "quora.com"), true},
		{"contains any-of-list matches one", strCond(rules.FieldFrom, rules.Contains, "pixlr.com", "quora.com"), true},
		{"contains any-of-list matches none", strCond(rules.FieldFrom, rules.Contains, "pixlr.com", "github.com"), false},
		{"contains is case-insensitive", strCond(rules.FieldSubject, rules.Contains, "WEEKLY"), true},
		{"not contains", strCond(rules.FieldFrom, rules.NotContains, "github.com"), true},
		{"not contains blocks on any candidate", strCond(rules.FieldFrom, rules.NotContains, "github.com", "quora.com"), false},
		{"equals full string", strCond(rules.FieldTo, rules.Equals, "ME@EXAMPLE.COM"), true},
		{"equals rejects substring", strCond(rules.FieldTo, rules.Equals, "example.com"), false},
		{"not equals", strCond(rules.FieldTo, rules.NotEquals, "other@example.com"), true},
		{"starts with", strCond(rules.FieldSubject, rules.StartsWith, "weekly"), true},
		{"starts with no match", strCond(rules.FieldSubject, rules.StartsWith, "digest"), false},
		{"ends with", strCond(rules.FieldSubject, rules.EndsWith, "questions"), true},
		{"label contains matches any label", strCond(rules.FieldLabel, rules.Contains, "newsletter"), true},
		{"label equals exact label", strCond(rules.FieldLabel, rules.Equals, "inbox"), true},
		{"label equals no match", strCond(rules.FieldLabel, rules.Equals, "spam"), false},
		{"label not contains fails when a label matches", strCond(rules.FieldLabel, rules.NotContains, "newsletter"), false},
		{"label not contains passes when none match", strCond(rules.FieldLabel, rules.NotContains, "promo"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(fields, tt.cond, testNow)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateDateConditions(t *testing.T) {
	dateCond := func(cond rules.Condition, amount int) rules.RuleCondition {
		return rules.RuleCondition{Field: rules.FieldReceivedDate, Condition: cond, Amount: amount}
	}

	tests := []struct {
		name     string
		received time.Time
		cond     rules.RuleCondition
		want     bool
	}{
		{"year match", time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), dateCond(rules.Year, 2024), true},
		{"year mismatch", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), dateCond(rules.Year, 2024), false},
		{"older than 30 days", testNow.AddDate(0, 0, -31), dateCond(rules.RelativeDays, 30), true},
		{"exactly 30 days old", testNow.AddDate(0, 0, -30), dateCond(rules.RelativeDays, 30), true},
		{"newer than 30 days", testNow.AddDate(0, 0, -29), dateCond(rules.RelativeDays, 30), false},
		{"older than 2 months", testNow.AddDate(0, -3, 0), dateCond(rules.RelativeMonths, 2), true},
		{"newer than 2 months", testNow.AddDate(0, -1, 0), dateCond(rules.RelativeMonths, 2), false},
		{
			name:     "less than reference instant",
			received: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			cond: rules.RuleCondition{
				Field:     rules.FieldReceivedDate,
				Condition: rules.LessThan,
				Instant:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			},
			want: true,
		},
		{
			name:     "greater than reference instant",
			received: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			cond: rules.RuleCondition{
				Field:     rules.FieldReceivedDate,
				Condition: rules.GreaterThan,
				Instant:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(FieldMap{ReceivedAt: tt.received}, tt.cond, testNow)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateIncompatible(t *testing.T) {
	tests := []struct {
		name string
		cond rules.RuleCondition
	}{
		{"date condition on string field", rules.RuleCondition{Field: rules.FieldFrom, Condition: rules.Year, Amount: 2024}},
		{"string condition on date field", strCond(rules.FieldReceivedDate, rules.Contains, "x")},
		{"unknown condition", rules.RuleCondition{Field: rules.FieldFrom, Condition: rules.Condition("Fancy")}},
		{"unknown field", strCond(rules.Field("Cc"), rules.Contains, "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(FieldMap{}, tt.cond, testNow)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) {
				t.Fatalf("expected *EvaluationError, got %T", err)
			}
			if got {
				t.Error("incompatible condition must evaluate to false")
			}
		})
	}
}

func TestExtractFields(t *testing.T) {
	received := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	msg := model.Message{
		GmailID:    "abc123",
		Sender:     "friend@example.com",
		Recipient:  "me@example.com",
		Subject:    "Lunch?",
		ReceivedAt: received,
		Labels:     []string{"INBOX"},
	}

	fields := ExtractFields(msg)
	if fields.From != msg.Sender || fields.To != msg.Recipient || fields.Subject != msg.Subject {
		t.Errorf("unexpected field map: %+v", fields)
	}
	if !fields.ReceivedAt.Equal(received) {
		t.Errorf("received at: got %v, want %v", fields.ReceivedAt, received)
	}

	// Missing subject and labels get defaults, not errors.
	fields = ExtractFields(model.Message{GmailID: "x", Sender: "a@b.c"})
	if fields.Subject != "" {
		t.Errorf("absent subject: got %q, want empty", fields.Subject)
	}
	if fields.Labels == nil || len(fields.Labels) != 0 {
		t.Errorf("absent labels: got %v, want empty set", fields.Labels)
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name      string
		results   []bool
		predicate rules.Predicate
		want      bool
	}{
		{"any with one true", []bool{false, true, false}, rules.PredicateAny, true},
		{"any with all false", []bool{false, false}, rules.PredicateAny, false},
		{"any empty", nil, rules.PredicateAny, false},
		{"all with all true", []bool{true, true}, rules.PredicateAll, true},
		{"all with one false", []bool{true, false, true}, rules.PredicateAll, false},
		{"all empty is vacuously true", nil, rules.PredicateAll, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Combine(tt.results, tt.predicate); got != tt.want {
				t.Errorf("Combine(%v, %s) = %v, want %v", tt.results, tt.predicate, got, tt.want)
			}
		})
	}
}
