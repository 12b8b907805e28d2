package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

const quotaExceededMsg = "Quota exceeded for quota metric 'Queries'"

// gmailErrorBody builds a Gmail API error response JSON body.
// Optional fields (message, errors, details) are included only when non-zero.
func gmailErrorBody(code int, message string, errors []map[string]string, details []map[string]string) []byte {
	inner := map[string]any{"code": code}
	if message != "" {
		inner["message"] = message
	}
	if errors != nil {
		inner["errors"] = errors
	}
	if details != nil {
		inner["details"] = details
	}
	b, err := json.Marshal(map[string]any{"error": inner})
	if err != nil {
		panic(fmt.Sprintf("failed to marshal test body: %v", err))
	}
	return b
}

func errorWithReason(reason string) []byte {
	return gmailErrorBody(403, "", []map[string]string{{"reason": reason}}, nil)
}

func errorWithDetail(reason string) []byte {
	return gmailErrorBody(403, "", nil, []map[string]string{{"reason": reason}})
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want bool
	}{
		{
			name: "RateLimitExceeded",
			body: errorWithReason("rateLimitExceeded"),
			want: true,
		},
		{
			name: "RateLimitExceededByMessage",
			body: gmailErrorBody(403, quotaExceededMsg, []map[string]string{{"reason": "rateLimitExceeded"}}, nil),
			want: true,
		},
		{
			name: "RateLimitExceededUpperCase",
			body: errorWithDetail("RATE_LIMIT_EXCEEDED"),
			want: true,
		},
		{
			name: "QuotaExceeded",
			body: gmailErrorBody(403, quotaExceededMsg, nil, nil),
			want: true,
		},
		{
			name: "UserRateLimitExceeded",
			body: errorWithReason("userRateLimitExceeded"),
			want: true,
		},
		{
			name: "PermissionDenied",
			body: errorWithReason("forbidden"),
			want: false,
		},
		{
			name: "EmptyBody",
			body: []byte{},
			want: false,
		},
		{
			name: "InvalidJSON",
			body: []byte("not valid json but contains rateLimitExceeded"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRateLimitError(tt.body); got != tt.want {
				t.Errorf("isRateLimitError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// newTestClient returns a Client pointed at the given test server.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c := NewClient(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRateLimiter(NewRateLimiter(1000)),
	)
	c.baseURL = serverURL
	return c
}

func TestListMessages_Request(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		q := r.URL.Query()
		gotQuery = map[string]string{
			"labelIds":   q.Get("labelIds"),
			"maxResults": q.Get("maxResults"),
			"pageToken":  q.Get("pageToken"),
		}
		fmt.Fprint(w, `{
			"messages": [
				{"id": "m1", "threadId": "t1"},
				{"id": "m2", "threadId": "t2"}
			],
			"nextPageToken": "tok-2",
			"resultSizeEstimate": 7
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.ListMessages(context.Background(), "INBOX", "tok-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	wantQuery := map[string]string{
		"labelIds":   "INBOX",
		"maxResults": "500",
		"pageToken":  "tok-1",
	}
	if diff := cmp.Diff(wantQuery, gotQuery); diff != "" {
		t.Errorf("query params mismatch (-want +got):\n%s", diff)
	}

	want := &MessageListResponse{
		Messages: []MessageID{
			{ID: "m1", ThreadID: "t1"},
			{ID: "m2", ThreadID: "t2"},
		},
		NextPageToken:      "tok-2",
		ResultSizeEstimate: 7,
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestListMessages_EmptyMailbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Gmail omits the messages field entirely when there are none.
		fmt.Fprint(w, `{"resultSizeEstimate": 0}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.ListMessages(context.Background(), "INBOX", "")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(resp.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0", len(resp.Messages))
	}
	if resp.NextPageToken != "" {
		t.Errorf("NextPageToken = %q, want empty", resp.NextPageToken)
	}
}

func TestListMessages_PageSizeOption(t *testing.T) {
	var gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("maxResults")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewClient(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPageSize(100),
	)
	c.baseURL = srv.URL

	if _, err := c.ListMessages(context.Background(), "INBOX", ""); err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if gotMax != "100" {
		t.Errorf("maxResults = %q, want 100", gotMax)
	}
}

func TestModifyMessage_Request(t *testing.T) {
	var gotPath, gotMethod, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"id": "m1"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.ModifyMessage(context.Background(), "m1", nil, []string{"INBOX"}); err != nil {
		t.Fatalf("ModifyMessage() error = %v", err)
	}

	if gotMethod != "POST" {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPath != "/users/me/messages/m1/modify" {
		t.Errorf("path = %q, want /users/me/messages/m1/modify", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}

	// addLabelIds must be omitted entirely, not sent as null or [].
	if _, present := gotBody["addLabelIds"]; present {
		t.Error("addLabelIds should be omitted when empty")
	}
	want := map[string]any{"removeLabelIds": []any{"INBOX"}}
	if diff := cmp.Diff(want, gotBody); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestModifyMessage_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write(gmailErrorBody(404, "Not Found", nil, nil))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.ModifyMessage(context.Background(), "gone", nil, []string{"INBOX"})
	if err == nil {
		t.Fatal("ModifyMessage() expected error for 404")
	}

	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Errorf("error = %v, want *NotFoundError", err)
	}
}

func TestRequest_NoRetryOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListMessages(context.Background(), "INBOX", "")
	if err == nil {
		t.Fatal("ListMessages() expected error for 503")
	}
	if calls != 1 {
		t.Errorf("server handled %d requests, want 1 (no retry)", calls)
	}
}

func TestRequest_QuotaExceeded(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write(errorWithReason("rateLimitExceeded"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetProfile(context.Background())
	if err == nil {
		t.Fatal("GetProfile() expected error for quota 403")
	}
	if got := err.Error(); got != "quota exceeded (403)" {
		t.Errorf("error = %q, want quota exceeded (403)", got)
	}
	if calls != 1 {
		t.Errorf("server handled %d requests, want 1 (no retry)", calls)
	}
}

func TestGetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/profile" {
			t.Errorf("path = %q, want /users/me/profile", r.URL.Path)
		}
		fmt.Fprint(w, `{"emailAddress": "user@example.com", "messagesTotal": 42, "threadsTotal": 10}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	profile, err := c.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	want := &Profile{EmailAddress: "user@example.com", MessagesTotal: 42, ThreadsTotal: 10}
	if diff := cmp.Diff(want, profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestListLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"labels": [
				{"id": "INBOX", "name": "INBOX", "type": "system"},
				{"id": "Label_7", "name": "newsletters", "type": "user", "messagesTotal": 3}
			]
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	labels, err := c.ListLabels(context.Background())
	if err != nil {
		t.Fatalf("ListLabels() error = %v", err)
	}

	want := []*Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_7", Name: "newsletters", Type: "user", MessagesTotal: 3},
	}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}
