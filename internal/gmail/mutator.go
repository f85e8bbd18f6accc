package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mailrules/internal/rules"
)

// System labels that exist in every mailbox and must not be created.
var systemLabels = map[string]string{
	"INBOX":     "INBOX",
	"SPAM":      "SPAM",
	"TRASH":     "TRASH",
	"IMPORTANT": "IMPORTANT",
	"STARRED":   "STARRED",
}

// Mutator translates engine actions into Gmail modify calls. Custom labels
// are created on first use and cached by upper-cased name for the rest of
// the run.
type Mutator struct {
	client *Client
	log    *slog.Logger

	mu     sync.Mutex
	labels map[string]string
}

// NewMutator creates a Mutator over the given client. The label cache is
// primed lazily on the first action that needs it.
func NewMutator(client *Client, log *slog.Logger) *Mutator {
	return &Mutator{client: client, log: log}
}

// Apply applies one action to one message.
func (m *Mutator) Apply(ctx context.Context, messageID string, action rules.Action) error {
	switch action.Kind {
	case rules.MarkRead:
		return m.client.Modify(ctx, messageID, nil, []string{"UNREAD"})
	case rules.MarkUnread:
		return m.client.Modify(ctx, messageID, []string{"UNREAD"}, nil)
	case rules.Archive:
		return m.client.Modify(ctx, messageID, nil, []string{"INBOX"})
	case rules.MarkSpam:
		return m.client.Modify(ctx, messageID, []string{"SPAM"}, nil)
	case rules.MarkImportant:
		return m.client.Modify(ctx, messageID, []string{"IMPORTANT"}, nil)
	case rules.AddLabel:
		id, err := m.ensureLabel(ctx, action.Name)
		if err != nil {
			return err
		}
		return m.client.Modify(ctx, messageID, []string{id}, nil)
	case rules.MoveToFolder:
		return m.moveToFolder(ctx, messageID, action.Name)
	default:
		return fmt.Errorf("unsupported action %q", action.Kind)
	}
}

// moveToFolder adds the target label and takes the message out of the
// inbox, unless the target is the inbox itself.
func (m *Mutator) moveToFolder(ctx context.Context, messageID, folder string) error {
	upper := strings.ToUpper(folder)
	if upper == "INBOX" {
		return m.client.Modify(ctx, messageID, []string{"INBOX"}, nil)
	}

	id, ok := systemLabels[upper]
	if !ok {
		var err error
		id, err = m.ensureLabel(ctx, folder)
		if err != nil {
			return err
		}
	}
	return m.client.Modify(ctx, messageID, []string{id}, []string{"INBOX"})
}

func (m *Mutator) ensureLabel(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.labels == nil {
		labels, err := m.client.ListLabels(ctx)
		if err != nil {
			return "", fmt.Errorf("list labels: %w", err)
		}
		m.labels = labels
	}

	upper := strings.ToUpper(name)
	if id, ok := m.labels[upper]; ok {
		return id, nil
	}

	id, err := m.client.CreateLabel(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	m.labels[upper] = id
	m.log.Info("created label", "name", name, "id", id)
	return id, nil
}
