package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/inboxzero/inboxzero/internal/gmail"
)

func newTestService(t *testing.T, mock *gmail.MockAPI, opts *Options) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mock, opts).WithLogger(logger)
}

func TestList_EmptyMailbox(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	ids, err := svc.List(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() returned %d IDs, want 0", len(ids))
	}
	if mock.ListMessagesCalls != 1 {
		t.Errorf("ListMessages called %d times, want 1", mock.ListMessagesCalls)
	}
}

func TestList_PaginationExhaustion(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.MessagePages = [][]string{
		{"m1", "m2"},
		{"m3", "m4"},
		{"m5"},
	}
	svc := newTestService(t, mock, nil)

	ids, err := svc.List(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"m1", "m2", "m3", "m4", "m5"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("List() IDs mismatch (-want +got):\n%s", diff)
	}

	// Each page is fetched exactly once, chained by its predecessor's token.
	wantTokens := []string{"", "page_1", "page_2"}
	if diff := cmp.Diff(wantTokens, mock.PageTokens); diff != "" {
		t.Errorf("page tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestList_PassesLabel(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	if _, err := svc.List(context.Background(), "Label_42"); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if mock.LastLabelID != "Label_42" {
		t.Errorf("LastLabelID = %q, want %q", mock.LastLabelID, "Label_42")
	}
}

func TestList_PageErrorDiscardsPartialResults(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.MessagePages = [][]string{
		{"m1", "m2"},
		{"m3"},
	}
	mock.PageErrors[1] = errors.New("backend unavailable")
	svc := newTestService(t, mock, nil)

	ids, err := svc.List(context.Background(), "INBOX")
	if err == nil {
		t.Fatal("List() error = nil, want error from second page")
	}
	if ids != nil {
		t.Errorf("List() returned %v after page failure, want nil", ids)
	}
	if mock.ListMessagesCalls != 2 {
		t.Errorf("ListMessages called %d times, want 2", mock.ListMessagesCalls)
	}
}

func TestArchive_RemovesLabelPerMessage(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	archived := svc.Archive(context.Background(), "INBOX", []string{"m1", "m2", "m3"})
	if archived != 3 {
		t.Errorf("Archive() = %d, want 3", archived)
	}

	want := []gmail.ModifyCall{
		{MessageID: "m1", Remove: []string{"INBOX"}},
		{MessageID: "m2", Remove: []string{"INBOX"}},
		{MessageID: "m3", Remove: []string{"INBOX"}},
	}
	if diff := cmp.Diff(want, mock.ModifyCalls); diff != "" {
		t.Errorf("modify calls mismatch (-want +got):\n%s", diff)
	}
}

func TestArchive_PartialFailureTolerance(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.ModifyErrors["m2"] = errors.New("message vanished")
	svc := newTestService(t, mock, nil)

	archived := svc.Archive(context.Background(), "INBOX", []string{"m1", "m2", "m3"})
	if archived != 2 {
		t.Errorf("Archive() = %d, want 2", archived)
	}

	// The failing item must not stop the loop: all three are attempted,
	// in order.
	if len(mock.ModifyCalls) != 3 {
		t.Fatalf("modify calls = %d, want 3", len(mock.ModifyCalls))
	}
	for i, id := range []string{"m1", "m2", "m3"} {
		if mock.ModifyCalls[i].MessageID != id {
			t.Errorf("modify call %d = %q, want %q", i, mock.ModifyCalls[i].MessageID, id)
		}
	}
}

func TestArchive_EmptyInput(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	if got := svc.Archive(context.Background(), "INBOX", nil); got != 0 {
		t.Errorf("Archive(nil) = %d, want 0", got)
	}
	if len(mock.ModifyCalls) != 0 {
		t.Errorf("modify calls = %d, want 0", len(mock.ModifyCalls))
	}
}

func TestArchive_ContextCancellation(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := svc.Archive(ctx, "INBOX", []string{"m1", "m2"}); got != 0 {
		t.Errorf("Archive() after cancel = %d, want 0", got)
	}
	if len(mock.ModifyCalls) != 0 {
		t.Errorf("modify calls = %d, want 0", len(mock.ModifyCalls))
	}
}

func TestRun_EmptyMailboxShortCircuits(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Listed != 0 || result.Archived != 0 || result.Failed != 0 {
		t.Errorf("Run() = %+v, want all-zero counts", result)
	}
	if len(mock.ModifyCalls) != 0 {
		t.Errorf("modify calls = %d, want 0 for empty mailbox", len(mock.ModifyCalls))
	}
}

func TestRun_ArchivesEverything(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.MessagePages = [][]string{
		{"m1", "m2"},
		{"m3"},
	}
	svc := newTestService(t, mock, nil)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := &Result{Label: "INBOX", Listed: 3, Archived: 3}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Run() result mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_PartialFailureCounts(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.MessagePages = [][]string{{"m1", "m2", "m3"}}
	mock.ModifyErrors["m2"] = errors.New("message vanished")
	svc := newTestService(t, mock, nil)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Archived != 2 || result.Failed != 1 {
		t.Errorf("Run() archived=%d failed=%d, want 2 and 1", result.Archived, result.Failed)
	}
}

func TestRun_DryRun(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.MessagePages = [][]string{{"m1", "m2"}}
	svc := newTestService(t, mock, &Options{DryRun: true})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Listed != 2 || result.Archived != 0 {
		t.Errorf("Run() = %+v, want 2 listed and 0 archived", result)
	}
	if !result.DryRun {
		t.Error("Result.DryRun = false, want true")
	}
	if len(mock.ModifyCalls) != 0 {
		t.Errorf("modify calls = %d, want 0 in dry run", len(mock.ModifyCalls))
	}
}

func TestRun_ListErrorAborts(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.ListMessagesError = errors.New("backend unavailable")
	svc := newTestService(t, mock, nil)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want listing error")
	}
	if len(mock.ModifyCalls) != 0 {
		t.Errorf("modify calls = %d, want 0 after listing failure", len(mock.ModifyCalls))
	}
}

func TestRun_CustomLabelResolution(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.Labels = []*gmail.Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_7", Name: "Newsletters", Type: "user"},
	}
	mock.MessagePages = [][]string{{"m1"}}
	svc := newTestService(t, mock, &Options{Label: "newsletters"})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Label != "Label_7" {
		t.Errorf("resolved label = %q, want %q", result.Label, "Label_7")
	}
	if mock.LastLabelID != "Label_7" {
		t.Errorf("listed label = %q, want %q", mock.LastLabelID, "Label_7")
	}
	if len(mock.ModifyCalls) != 1 || mock.ModifyCalls[0].Remove[0] != "Label_7" {
		t.Errorf("modify calls = %+v, want one removal of Label_7", mock.ModifyCalls)
	}
}

func TestRun_DefaultLabelSkipsResolution(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, nil)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if mock.LabelsCalls != 0 {
		t.Errorf("ListLabels called %d times, want 0 for INBOX", mock.LabelsCalls)
	}
}

func TestRun_UnknownLabel(t *testing.T) {
	mock := gmail.NewMockAPI()
	svc := newTestService(t, mock, &Options{Label: "nope"})

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want unknown-label error")
	}
	if mock.ListMessagesCalls != 0 {
		t.Errorf("ListMessages called %d times, want 0 for unknown label", mock.ListMessagesCalls)
	}
}

func TestResolveLabel(t *testing.T) {
	mock := gmail.NewMockAPI()
	mock.Labels = []*gmail.Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_3", Name: "Receipts", Type: "user"},
	}
	svc := newTestService(t, mock, nil)

	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"by ID", "Label_3", "Label_3"},
		{"by name", "Receipts", "Label_3"},
		{"case insensitive", "receipts", "Label_3"},
		{"system label", "INBOX", "INBOX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ResolveLabel(context.Background(), tt.label)
			if err != nil {
				t.Fatalf("ResolveLabel(%q) error = %v", tt.label, err)
			}
			if got != tt.want {
				t.Errorf("ResolveLabel(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	svc := New(gmail.NewMockAPI(), nil)
	if svc.opts.Label != DefaultLabel {
		t.Errorf("default label = %q, want %q", svc.opts.Label, DefaultLabel)
	}

	svc = New(gmail.NewMockAPI(), &Options{})
	if svc.opts.Label != DefaultLabel {
		t.Errorf("empty label normalized to %q, want %q", svc.opts.Label, DefaultLabel)
	}
}
