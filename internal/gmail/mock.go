package gmail

import (
	"context"
	"fmt"
	"sync"
)

// ModifyCall records one ModifyMessage invocation.
type ModifyCall struct {
	MessageID string
	Add       []string
	Remove    []string
}

// MockAPI is a mock implementation of the Gmail API for testing.
type MockAPI struct {
	mu sync.Mutex

	// Profile to return
	Profile *Profile

	// Labels to return
	Labels []*Label

	// Message list pages - each page is a list of message IDs
	MessagePages [][]string

	// Error injection
	ProfileError      error
	LabelsError       error
	ListMessagesError error            // fails every list call when set
	PageErrors        map[int]error    // fails the request for a specific page number
	ModifyErrors      map[string]error // per-message modify errors

	// Call tracking for assertions
	ProfileCalls      int
	LabelsCalls       int
	ListMessagesCalls int
	LastLabelID       string   // last labelID passed to ListMessages
	PageTokens        []string // page tokens seen by ListMessages, in order
	ModifyCalls       []ModifyCall
}

// NewMockAPI creates a new mock API with empty state.
func NewMockAPI() *MockAPI {
	return &MockAPI{
		PageErrors:   make(map[int]error),
		ModifyErrors: make(map[string]error),
	}
}

// GetProfile returns the mock profile.
func (m *MockAPI) GetProfile(ctx context.Context) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProfileCalls++

	if m.ProfileError != nil {
		return nil, m.ProfileError
	}
	if m.Profile == nil {
		return &Profile{EmailAddress: "test@example.com"}, nil
	}
	return m.Profile, nil
}

// ListLabels returns the mock labels.
func (m *MockAPI) ListLabels(ctx context.Context) ([]*Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LabelsCalls++

	if m.LabelsError != nil {
		return nil, m.LabelsError
	}
	if m.Labels == nil {
		return []*Label{
			{ID: "INBOX", Name: "INBOX", Type: "system"},
			{ID: "SENT", Name: "SENT", Type: "system"},
		}, nil
	}
	return m.Labels, nil
}

// ListMessages returns mock message IDs with pagination. Page tokens use the
// form "page_N"; an empty token selects page 0.
func (m *MockAPI) ListMessages(ctx context.Context, labelID string, pageToken string) (*MessageListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListMessagesCalls++
	m.LastLabelID = labelID
	m.PageTokens = append(m.PageTokens, pageToken)

	if m.ListMessagesError != nil {
		return nil, m.ListMessagesError
	}

	pageNum := 0
	if pageToken != "" {
		_, err := fmt.Sscanf(pageToken, "page_%d", &pageNum)
		if err != nil {
			return nil, fmt.Errorf("invalid page token: %s", pageToken)
		}
	}

	if err, ok := m.PageErrors[pageNum]; ok && err != nil {
		return nil, err
	}

	if pageNum >= len(m.MessagePages) {
		return &MessageListResponse{}, nil
	}

	page := m.MessagePages[pageNum]
	messages := make([]MessageID, len(page))
	for i, id := range page {
		messages[i] = MessageID{ID: id, ThreadID: "thread_" + id}
	}

	var nextPageToken string
	if pageNum+1 < len(m.MessagePages) {
		nextPageToken = fmt.Sprintf("page_%d", pageNum+1)
	}

	total := int64(0)
	for _, p := range m.MessagePages {
		total += int64(len(p))
	}

	return &MessageListResponse{
		Messages:           messages,
		NextPageToken:      nextPageToken,
		ResultSizeEstimate: total,
	}, nil
}

// ModifyMessage records a modify call and returns any injected error.
func (m *MockAPI) ModifyMessage(ctx context.Context, messageID string, addLabelIDs, removeLabelIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModifyCalls = append(m.ModifyCalls, ModifyCall{
		MessageID: messageID,
		Add:       addLabelIDs,
		Remove:    removeLabelIDs,
	})

	if err, ok := m.ModifyErrors[messageID]; ok && err != nil {
		return err
	}
	return nil
}

// Close is a no-op for the mock.
func (m *MockAPI) Close() error {
	return nil
}

// Reset clears all state and call tracking.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Profile = nil
	m.Labels = nil
	m.MessagePages = nil

	m.ProfileError = nil
	m.LabelsError = nil
	m.ListMessagesError = nil
	m.PageErrors = make(map[int]error)
	m.ModifyErrors = make(map[string]error)

	m.ProfileCalls = 0
	m.LabelsCalls = 0
	m.ListMessagesCalls = 0
	m.LastLabelID = ""
	m.PageTokens = nil
	m.ModifyCalls = nil
}

// Ensure MockAPI implements API interface.
var _ API = (*MockAPI)(nil)
