package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"mailrules/internal/model"
	"mailrules/internal/rules"
)

// MessageStore supplies the batch of messages to evaluate.
type MessageStore interface {
	ListUnread(ctx context.Context) ([]model.Message, error)
}

// Mutator applies one mailbox action to a message. Implementations may
// block on external I/O; the engine retries transient failures with
// bounded backoff.
type Mutator interface {
	Apply(ctx context.Context, messageID string, action rules.Action) error
}

// OutcomeSink records processing outcomes. A recording failure is logged
// and does not affect the run.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, outcome *model.Outcome) error
}

// transienter is implemented by mutator errors that are worth retrying.
type transienter interface {
	Transient() bool
}

func isTransient(err error) bool {
	var t transienter
	return errors.As(err, &t) && t.Transient()
}

// Engine evaluates one rule document against a message batch and dispatches
// the planned actions.
type Engine struct {
	doc     *rules.Document
	store   MessageStore
	mutator Mutator
	sink    OutcomeSink
	log     *slog.Logger

	now        func() time.Time
	maxRetries uint64
	retryBase  time.Duration
}

// New creates an Engine over a validated rule document.
func New(doc *rules.Document, store MessageStore, mutator Mutator, sink OutcomeSink, log *slog.Logger) *Engine {
	return &Engine{
		doc:        doc,
		store:      store,
		mutator:    mutator,
		sink:       sink,
		log:        log,
		now:        time.Now,
		maxRetries: 3,
		retryBase:  200 * time.Millisecond,
	}
}

// SetNow overrides the reference clock used for relative date conditions
// and outcome timestamps (useful for testing).
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// SetRetry overrides the mutator retry policy.
func (e *Engine) SetRetry(maxRetries uint64, base time.Duration) {
	e.maxRetries = maxRetries
	e.retryBase = base
}

// Summary reports aggregate counts for one engine run.
type Summary struct {
	RunID     string
	Processed int
	Matched   int
	Applied   int
	Failed    int
}

// Run fetches the unread batch and processes every message against the
// rule document. No per-message or per-condition error aborts the batch;
// only a failure to fetch the batch itself is returned.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}

	messages, err := e.store.ListUnread(ctx)
	if err != nil {
		return summary, fmt.Errorf("list unread messages: %w", err)
	}

	e.log.Info("processing batch", "run_id", summary.RunID, "messages", len(messages), "rules", len(e.doc.Rules))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Processed++
		e.processMessage(ctx, summary.RunID, msg, &summary)
	}

	e.log.Info("batch done",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"matched", summary.Matched,
		"applied", summary.Applied,
		"failed", summary.Failed,
	)
	return summary, nil
}

// processMessage walks one message through Pending -> Evaluated ->
// {Matched, Unmatched} -> {Applied, Failed} and records its outcome.
func (e *Engine) processMessage(ctx context.Context, runID string, msg model.Message, summary *Summary) {
	fields := ExtractFields(msg)
	now := e.now().UTC()

	results := make([]bool, 0, len(e.doc.Rules))
	var matchedIdx []int
	var matchedConds []rules.RuleCondition

	for i, rc := range e.doc.Rules {
		ok, err := Evaluate(fields, rc, now)
		if err != nil {
			e.log.Warn("skipping condition", "message_id", msg.GmailID, "rule", i, "error", err)
			ok = false
		}
		results = append(results, ok)
		if ok {
			matchedIdx = append(matchedIdx, i)
			matchedConds = append(matchedConds, rc)
		}
	}

	outcome := &model.Outcome{
		RunID:        runID,
		MessageID:    msg.GmailID,
		MatchedRules: matchedIdx,
		CreatedAt:    now,
	}

	if !Combine(results, e.doc.Predicate) {
		e.record(ctx, outcome)
		return
	}
	summary.Matched++

	plan := Plan(matchedConds)
	e.log.Debug("matched", "message_id", msg.GmailID, "rules", matchedIdx, "actions", len(plan))

	for _, action := range plan {
		if err := e.dispatch(ctx, msg.GmailID, action); err != nil {
			// Already applied actions are not rolled back; the outcome
			// records exactly what succeeded before the failure.
			outcome.Failed = true
			outcome.FailureReason = fmt.Sprintf("%s: %v", action, err)
			e.log.Error("apply action", "message_id", msg.GmailID, "action", action.String(), "error", err)
			break
		}
		outcome.AppliedActions = append(outcome.AppliedActions, action.String())
	}

	if outcome.Failed {
		summary.Failed++
	} else {
		summary.Applied++
	}
	e.record(ctx, outcome)
}

// dispatch applies one action, retrying transient mutator failures with
// exponential backoff.
func (e *Engine) dispatch(ctx context.Context, messageID string, action rules.Action) error {
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.mutator.Apply(ctx, messageID, action)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (e *Engine) record(ctx context.Context, outcome *model.Outcome) {
	if err := e.sink.RecordOutcome(ctx, outcome); err != nil {
		e.log.Error("record outcome", "message_id", outcome.MessageID, "error", err)
	}
}
