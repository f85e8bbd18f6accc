// Package engine implements the rule evaluation pipeline: field extraction,
// condition evaluation, predicate combination, action planning, and the
// orchestrator that runs a rule document against a batch of messages.
package engine

import (
	"time"

	"mailrules/internal/model"
)

// FieldMap holds the comparable attributes extracted from one message.
// It is built once per message and reused for every rule condition.
type FieldMap struct {
	From       string
	To         string
	Subject    string
	ReceivedAt time.Time
	Labels     []string
}

// ExtractFields normalizes a message into a FieldMap. Absent subject maps
// to the empty string and absent labels to an empty set; there is no
// failure mode for those.
func ExtractFields(msg model.Message) FieldMap {
	labels := msg.Labels
	if labels == nil {
		labels = []string{}
	}
	return FieldMap{
		From:       msg.Sender,
		To:         msg.Recipient,
		Subject:    msg.Subject,
		ReceivedAt: msg.ReceivedAt,
		Labels:     labels,
	}
}
