// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"mailrules/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	InsertMessages(ctx context.Context, msgs []model.Message) (int, error)
	ListUnread(ctx context.Context) ([]model.Message, error)
	ListRead(ctx context.Context) ([]model.Message, error)
	MarkMessageRead(ctx context.Context, gmailID string, read bool) error

	RecordOutcome(ctx context.Context, outcome *model.Outcome) error
	ListOutcomes(ctx context.Context, runID string) ([]model.Outcome, error)

	Close() error
}
