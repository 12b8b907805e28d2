// Package archive implements the inbox archiving workflow: enumerate the
// messages carrying a label, then strip that label from each one.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inboxzero/inboxzero/internal/gmail"
)

// DefaultLabel is the label archived messages are stripped of.
const DefaultLabel = "INBOX"

// Options configures an archive run.
type Options struct {
	Label  string // label name or ID to archive (default "INBOX")
	DryRun bool   // list only, issue no modifications
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Label: DefaultLabel,
	}
}

// Result summarizes one archive run. It is derived per run and never stored.
type Result struct {
	Label    string // resolved label ID
	Listed   int    // messages found carrying the label
	Archived int    // messages whose modify call succeeded
	Failed   int    // messages not archived (modify failures or interruption)
	DryRun   bool
}

// Service runs the archive workflow against a Gmail client.
type Service struct {
	client gmail.API
	logger *slog.Logger
	opts   *Options
}

// New creates an archive service.
func New(client gmail.API, opts *Options) *Service {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}

	return &Service{
		client: client,
		logger: slog.Default(),
		opts:   opts,
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// ResolveLabel maps a label name or ID to its ID, matching IDs exactly and
// names case-insensitively.
func (s *Service) ResolveLabel(ctx context.Context, label string) (string, error) {
	labels, err := s.client.ListLabels(ctx)
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}

	for _, l := range labels {
		if l.ID == label || strings.EqualFold(l.Name, label) {
			return l.ID, nil
		}
	}
	return "", fmt.Errorf("label %q not found", label)
}

// List returns the IDs of every message carrying the label, following
// pagination to exhaustion. Order is the provider's page order; nothing is
// reordered or deduplicated. A failure on any page discards results from
// prior pages and fails the whole listing.
func (s *Service) List(ctx context.Context, labelID string) ([]string, error) {
	var ids []string
	var pageToken string
	pages := 0

	for {
		resp, err := s.client.ListMessages(ctx, labelID, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		pages++

		if len(resp.Messages) == 0 {
			break
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.ID)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.logger.Debug("listing complete", "label", labelID, "messages", len(ids), "pages", pages)
	return ids, nil
}

// Archive removes the label from each message, one modify call per ID in
// input order. Item failures are logged and counted but never stop the loop;
// only ctx cancellation does. Returns the number of successful modifications.
func (s *Service) Archive(ctx context.Context, labelID string, ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	archived := 0
	failed := 0
	for i, id := range ids {
		select {
		case <-ctx.Done():
			s.logger.Warn("archiving interrupted", "processed", i, "total", len(ids))
			return archived
		default:
		}

		if err := s.client.ModifyMessage(ctx, id, nil, []string{labelID}); err != nil {
			s.logger.Warn("failed to archive message", "id", id, "error", err)
			failed++
			continue
		}
		archived++
	}

	s.logger.Debug("archive pass complete", "archived", archived, "failed", failed)
	return archived
}

// Run executes one complete archive pass: resolve the label, list the
// messages carrying it, and strip the label from each. An empty listing ends
// the run before any modification is attempted.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	labelID := s.opts.Label
	if labelID != DefaultLabel {
		// Custom labels may be given by name; system INBOX is its own ID.
		resolved, err := s.ResolveLabel(ctx, s.opts.Label)
		if err != nil {
			return nil, err
		}
		labelID = resolved
	}

	ids, err := s.List(ctx, labelID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Label:  labelID,
		Listed: len(ids),
		DryRun: s.opts.DryRun,
	}

	if len(ids) == 0 {
		s.logger.Info("no messages to archive", "label", s.opts.Label)
		return result, nil
	}

	if s.opts.DryRun {
		s.logger.Info("dry run, skipping modifications", "label", s.opts.Label, "messages", len(ids))
		return result, nil
	}

	result.Archived = s.Archive(ctx, labelID, ids)
	result.Failed = result.Listed - result.Archived
	if err := ctx.Err(); err != nil {
		return result, err
	}

	s.logger.Info("archive run complete",
		"label", s.opts.Label,
		"listed", result.Listed,
		"archived", result.Archived,
		"failed", result.Failed,
	)
	return result, nil
}
