package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mailrules/internal/model"
)

// mockTransport routes requests by method and path and records them.
type mockTransport struct {
	responses map[string]mockResponse
	requests  []recordedRequest
	err       error
}

type mockResponse struct {
	status int
	body   string
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	m.requests = append(m.requests, recordedRequest{Method: req.Method, Path: req.URL.Path, Body: body})

	if m.err != nil {
		return nil, m.err
	}

	key := req.Method + " " + req.URL.Path
	resp, ok := m.responses[key]
	if !ok {
		resp = mockResponse{status: 200, body: "{}"}
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(bytes.NewBufferString(resp.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(transport *mockTransport) *Client {
	c := NewClient(transport, "test-token", discardLogger())
	c.SetBaseURL("https://gmail.test/v1/users/me")
	return c
}

func TestListMessageIDs(t *testing.T) {
	transport := &mockTransport{responses: map[string]mockResponse{
		"GET /v1/users/me/messages": {status: 200, body: `{"messages": [{"id": "a1"}, {"id": "b2"}]}`},
	}}
	c := newTestClient(transport)

	ids, err := c.ListMessageIDs(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "b2"}, ids); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
}

func TestGetMessage(t *testing.T) {
	fixture := loadFixture(t, "../../testdata/gmail_message.json")
	transport := &mockTransport{responses: map[string]mockResponse{
		"GET /v1/users/me/messages/18f2a9c001": {status: 200, body: fixture},
	}}
	c := newTestClient(transport)

	got, err := c.GetMessage(context.Background(), "18f2a9c001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := model.Message{
		GmailID:    "18f2a9c001",
		Sender:     "Quora Digest <digest-noreply@quora.com>",
		Recipient:  "me@example.com",
		Subject:    "Why is the sky blue?",
		Body:       "Hello from Quora",
		Folder:     "Inbox",
		ReceivedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Labels:     []string{"UNREAD", "INBOX", "CATEGORY_UPDATES"},
		IsRead:     false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message (-want +got):\n%s", diff)
	}
}

func TestGetMessageDefaults(t *testing.T) {
	transport := &mockTransport{responses: map[string]mockResponse{
		"GET /v1/users/me/messages/x1": {status: 200, body: `{"id": "x1", "labelIds": ["INBOX"], "payload": {"headers": []}}`},
	}}
	c := newTestClient(transport)

	got, err := c.GetMessage(context.Background(), "x1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sender != "Unknown" || got.Subject != "No Subject" {
		t.Errorf("defaults not applied: %+v", got)
	}
	if !got.IsRead {
		t.Error("message without UNREAD label should be read")
	}
}

func TestAPIErrorStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"unauthorized", 401, false},
		{"not found", 404, false},
		{"rate limited", 429, true},
		{"server error", 503, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{responses: map[string]mockResponse{
				"GET /v1/users/me/messages": {status: tt.status, body: `{"error": "nope"}`},
			}}
			c := newTestClient(transport)

			_, err := c.ListMessageIDs(context.Background(), 5)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			apiErr, ok := err.(*APIError)
			if !ok {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Transient() != tt.wantTransient {
				t.Errorf("Transient() = %v, want %v", apiErr.Transient(), tt.wantTransient)
			}
		})
	}
}

func TestFetchMessagesSkipsBrokenMessage(t *testing.T) {
	fixture := loadFixture(t, "../../testdata/gmail_message.json")
	transport := &mockTransport{responses: map[string]mockResponse{
		"GET /v1/users/me/messages":            {status: 200, body: `{"messages": [{"id": "broken"}, {"id": "18f2a9c001"}]}`},
		"GET /v1/users/me/messages/broken":     {status: 404, body: `{"error": "gone"}`},
		"GET /v1/users/me/messages/18f2a9c001": {status: 200, body: fixture},
	}}
	c := newTestClient(transport)

	msgs, err := c.FetchMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].GmailID != "18f2a9c001" {
		t.Errorf("expected only the healthy message, got %+v", msgs)
	}
}

func TestModifySendsLabelChanges(t *testing.T) {
	transport := &mockTransport{}
	c := newTestClient(transport)

	err := c.Modify(context.Background(), "m1", []string{"Label_7"}, []string{"INBOX"})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}

	if len(transport.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(transport.requests))
	}
	req := transport.requests[0]
	if req.Method != http.MethodPost || req.Path != "/v1/users/me/messages/m1/modify" {
		t.Errorf("unexpected request: %+v", req)
	}

	var body map[string][]string
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string][]string{"addLabelIds": {"Label_7"}, "removeLabelIds": {"INBOX"}}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("modify body (-want +got):\n%s", diff)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var captured *http.Request
	transport := &mockTransport{}
	c := NewClient(clientFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return transport.Do(req)
	}), "secret-token", discardLogger())
	c.SetBaseURL("https://gmail.test/v1/users/me")

	if _, err := c.ListMessageIDs(context.Background(), 1); err != nil {
		t.Fatalf("list: %v", err)
	}

	if got := captured.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("authorization header = %q", got)
	}
}

type clientFunc func(*http.Request) (*http.Response, error)

func (f clientFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
