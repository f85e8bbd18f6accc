// Package model defines the domain types used across the application.
package model

import "time"

// Message represents a single mail message cached in the local store.
type Message struct {
	ID          int64
	GmailID     string
	Sender      string
	Recipient   string
	Subject     string
	Body        string
	Folder      string
	ReceivedAt  time.Time
	Labels      []string
	IsRead      bool
	ProcessedAt time.Time
}

// Outcome is the append-only audit record of one message in one engine run.
// It is created exactly once per (message, run) pair and never mutated.
type Outcome struct {
	ID             int64
	RunID          string
	MessageID      string
	MatchedRules   []int
	AppliedActions []string
	Failed         bool
	FailureReason  string
	CreatedAt      time.Time
}
