// Package gmail provides a minimal Gmail REST client with rate limiting.
package gmail

import "context"

// AccountReader provides read access to account-level Gmail data.
type AccountReader interface {
	// GetProfile returns the authenticated user's profile.
	GetProfile(ctx context.Context) (*Profile, error)

	// ListLabels returns all labels for the account.
	ListLabels(ctx context.Context) ([]*Label, error)
}

// MessageReader provides read access to Gmail message references.
type MessageReader interface {
	// ListMessages returns message IDs carrying the given label.
	// Use pageToken for pagination. Returns next page token if more results exist.
	ListMessages(ctx context.Context, labelID string, pageToken string) (*MessageListResponse, error)
}

// MessageModifier provides label mutations on individual messages.
type MessageModifier interface {
	// ModifyMessage adds and removes labels on a single message.
	// All other labels on the message are left untouched.
	ModifyMessage(ctx context.Context, messageID string, addLabelIDs, removeLabelIDs []string) error
}

// API defines the interface for Gmail operations.
// This interface enables mocking for tests without hitting the real API.
type API interface {
	AccountReader
	MessageReader
	MessageModifier

	// Close releases any resources held by the client.
	Close() error
}

// Profile represents a Gmail user profile.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
}

// Label represents a Gmail label.
type Label struct {
	ID             string
	Name           string
	Type           string // "system" or "user"
	MessagesTotal  int64
	MessagesUnread int64
}

// MessageListResponse contains a page of message IDs.
type MessageListResponse struct {
	Messages           []MessageID
	NextPageToken      string
	ResultSizeEstimate int64
}

// MessageID represents a message reference from list operations.
type MessageID struct {
	ID       string
	ThreadID string
}
