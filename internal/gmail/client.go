// Package gmail talks to the Gmail REST API: fetching message metadata and
// applying mailbox mutations. Auth token lifecycle is out of scope; the
// client is handed a ready bearer token.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"mailrules/internal/model"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx response from the Gmail API.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("gmail api: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a minimal Gmail REST API client.
type Client struct {
	client HTTPClient
	token  string
	base   string
	log    *slog.Logger
}

// NewClient creates a Client using the given HTTP client and bearer token.
func NewClient(client HTTPClient, token string, log *slog.Logger) *Client {
	return &Client{
		client: client,
		token:  token,
		base:   defaultBaseURL,
		log:    log,
	}
}

// SetBaseURL overrides the API endpoint (useful for testing).
func (c *Client) SetBaseURL(base string) {
	c.base = strings.TrimRight(base, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messagePayload struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []messagePayload `json:"parts"`
}

type messageResponse struct {
	ID       string         `json:"id"`
	LabelIDs []string       `json:"labelIds"`
	Payload  messagePayload `json:"payload"`
}

// ListMessageIDs returns up to maxResults message IDs from the mailbox.
func (c *Client) ListMessageIDs(ctx context.Context, maxResults int) ([]string, error) {
	var resp listResponse
	path := fmt.Sprintf("/messages?maxResults=%d", maxResults)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetMessage fetches one message and normalizes it into a model.Message.
func (c *Client) GetMessage(ctx context.Context, id string) (model.Message, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id), nil, &resp); err != nil {
		return model.Message{}, err
	}
	return normalizeMessage(resp), nil
}

// FetchMessages lists and fetches up to maxResults messages. A failure to
// fetch a single message is logged and skipped; the rest of the batch is
// still returned.
func (c *Client) FetchMessages(ctx context.Context, maxResults int) ([]model.Message, error) {
	ids, err := c.ListMessageIDs(ctx, maxResults)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return msgs, ctx.Err()
		}
		m, err := c.GetMessage(ctx, id)
		if err != nil {
			c.log.Error("fetch message", "message_id", id, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Modify adds and removes label IDs on one message.
func (c *Client) Modify(ctx context.Context, id string, addLabelIDs, removeLabelIDs []string) error {
	body := map[string][]string{}
	if len(addLabelIDs) > 0 {
		body["addLabelIds"] = addLabelIDs
	}
	if len(removeLabelIDs) > 0 {
		body["removeLabelIds"] = removeLabelIDs
	}
	return c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(id)+"/modify", body, nil)
}

type labelsResponse struct {
	Labels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"labels"`
}

// ListLabels returns existing labels keyed by upper-cased name.
func (c *Client) ListLabels(ctx context.Context) (map[string]string, error) {
	var resp labelsResponse
	if err := c.do(ctx, http.MethodGet, "/labels", nil, &resp); err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		labels[strings.ToUpper(l.Name)] = l.ID
	}
	return labels, nil
}

// CreateLabel creates a user label and returns its ID.
func (c *Client) CreateLabel(ctx context.Context, name string) (string, error) {
	body := map[string]string{
		"name":                  name,
		"labelListVisibility":   "labelShow",
		"messageListVisibility": "show",
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/labels", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func normalizeMessage(resp messageResponse) model.Message {
	msg := model.Message{
		GmailID: resp.ID,
		Sender:  "Unknown",
		Subject: "No Subject",
		Folder:  "Inbox",
		Labels:  resp.LabelIDs,
		IsRead:  true,
	}
	if msg.Labels == nil {
		msg.Labels = []string{}
	}
	for _, l := range resp.LabelIDs {
		if l == "UNREAD" {
			msg.IsRead = false
		}
	}

	for _, h := range resp.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.Sender = h.Value
		case "to":
			msg.Recipient = h.Value
		case "subject":
			msg.Subject = h.Value
		case "date":
			if t, err := mail.ParseDate(h.Value); err == nil {
				msg.ReceivedAt = t.UTC()
			}
		}
	}

	msg.Body = extractTextBody(resp.Payload)
	return msg
}

// extractTextBody finds the first text/plain part and decodes it.
func extractTextBody(p messagePayload) string {
	if len(p.Parts) == 0 {
		return decodeBody(p.Body.Data)
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" {
			if body := decodeBody(part.Body.Data); body != "" {
				return body
			}
		}
	}
	for _, part := range p.Parts {
		if body := extractTextBody(part); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
