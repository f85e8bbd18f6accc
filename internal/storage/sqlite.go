package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"mailrules/internal/model"
	"mailrules/internal/rules"
	"mailrules/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertMessages inserts a batch in a single transaction, skipping
// messages whose gmail_id is already present. Returns the number of rows
// actually inserted.
func (s *SQLite) InsertMessages(ctx context.Context, msgs []model.Message) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO messages
		   (gmail_id, sender, recipient, subject, body, folder, received_at, labels, read_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, m := range msgs {
		labels, err := json.Marshal(m.Labels)
		if err != nil {
			return inserted, fmt.Errorf("marshal labels: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			m.GmailID, m.Sender, m.Recipient, m.Subject, m.Body, m.Folder,
			m.ReceivedAt.UTC().Format(timeLayout), string(labels), boolToInt(m.IsRead),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert message %s: %w", m.GmailID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ListUnread returns all unread messages, newest first.
func (s *SQLite) ListUnread(ctx context.Context) ([]model.Message, error) {
	return s.listByReadStatus(ctx, false)
}

// ListRead returns all messages already marked read, newest first.
func (s *SQLite) ListRead(ctx context.Context) ([]model.Message, error) {
	return s.listByReadStatus(ctx, true)
}

func (s *SQLite) listByReadStatus(ctx context.Context, read bool) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gmail_id, sender, recipient, subject, body, folder, received_at, labels, read_status, processed_at
		 FROM messages WHERE read_status = ? ORDER BY received_at DESC`,
		boolToInt(read),
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessageRead updates the local read flag for one message.
func (s *SQLite) MarkMessageRead(ctx context.Context, gmailID string, read bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET read_status = ?, processed_at = ? WHERE gmail_id = ?`,
		boolToInt(read), time.Now().UTC().Format(timeLayout), gmailID,
	)
	if err != nil {
		return fmt.Errorf("update read status: %w", err)
	}
	return nil
}

// RecordOutcome appends one processing outcome. As a cache-consistency
// side effect, the local read flag follows a successfully applied
// MarkRead/MarkUnread action.
func (s *SQLite) RecordOutcome(ctx context.Context, outcome *model.Outcome) error {
	matched, err := json.Marshal(outcome.MatchedRules)
	if err != nil {
		return fmt.Errorf("marshal matched rules: %w", err)
	}
	applied, err := json.Marshal(outcome.AppliedActions)
	if err != nil {
		return fmt.Errorf("marshal applied actions: %w", err)
	}

	created := outcome.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, message_id, matched_rules, applied_actions, failed, failure_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID, outcome.MessageID, string(matched), string(applied),
		boolToInt(outcome.Failed), outcome.FailureReason, created.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		outcome.ID = id
	}

	for _, action := range outcome.AppliedActions {
		switch action {
		case string(rules.MarkRead):
			return s.MarkMessageRead(ctx, outcome.MessageID, true)
		case string(rules.MarkUnread):
			return s.MarkMessageRead(ctx, outcome.MessageID, false)
		}
	}
	return nil
}

// ListOutcomes returns outcomes for one run, or all outcomes when runID is
// empty, oldest first.
func (s *SQLite) ListOutcomes(ctx context.Context, runID string) ([]model.Outcome, error) {
	query := `SELECT id, run_id, message_id, matched_rules, applied_actions, failed, failure_reason, created_at
	          FROM outcomes`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var matched, applied string
		var failed int
		var createdStr string
		err := rows.Scan(&o.ID, &o.RunID, &o.MessageID, &matched, &applied, &failed, &o.FailureReason, &createdStr)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(matched), &o.MatchedRules); err != nil {
			return nil, fmt.Errorf("unmarshal matched rules: %w", err)
		}
		if err := json.Unmarshal([]byte(applied), &o.AppliedActions); err != nil {
			return nil, fmt.Errorf("unmarshal applied actions: %w", err)
		}
		o.Failed = failed == 1
		o.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (model.Message, error) {
	var m model.Message
	var labelsStr string
	var readStatus int
	var receivedStr string
	var processedStr sql.NullString
	err := row.Scan(&m.ID, &m.GmailID, &m.Sender, &m.Recipient, &m.Subject, &m.Body,
		&m.Folder, &receivedStr, &labelsStr, &readStatus, &processedStr)
	if err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	m.IsRead = readStatus == 1
	m.ReceivedAt, _ = time.Parse(timeLayout, receivedStr)
	if processedStr.Valid {
		m.ProcessedAt, _ = time.Parse(timeLayout, processedStr.String)
	}
	if labelsStr != "" {
		if err := json.Unmarshal([]byte(labelsStr), &m.Labels); err != nil {
			return m, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	return m, nil
}
