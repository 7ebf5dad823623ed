package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"questionpaper-ingest/internal/models"
	"questionpaper-ingest/internal/modules/ingestor"
)

// ConsoleReporter prints one line per processed URL and keeps a running
// summary. It is the last pipeline stage.
type ConsoleReporter struct {
	out io.Writer

	mu      sync.Mutex
	summary models.Summary
	failed  []models.Result
}

// New creates a ConsoleReporter writing to an optional custom writer.
// Uses os.Stdout if not provided.
func New(out ...io.Writer) *ConsoleReporter {
	var w io.Writer = os.Stdout
	if len(out) > 0 && out[0] != nil {
		w = out[0]
	}
	return &ConsoleReporter{out: w}
}

// Report prints the line for r and counts it.
func (cr *ConsoleReporter) Report(r models.Result) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	cr.summary.Add(r)
	if r.Outcome == models.OutcomeFailed {
		cr.failed = append(cr.failed, r)
	}
	fmt.Fprintln(cr.out, Line(r))
}

// Execute reports every models.Result received on input. It drains input
// until it is closed, even after ctx is canceled, so that the result of an
// interrupted store call is still printed.
func (cr *ConsoleReporter) Execute(ctx context.Context, input <-chan interface{}, output chan<- interface{}, logger *zap.Logger) error {
	for item := range input {
		r, ok := item.(models.Result)
		if !ok {
			logger.Warn("invalid input type, expected Result", zap.Any("type", item))
			continue
		}

		fields := []zap.Field{
			zap.String("url", r.URL),
			zap.String("name", r.Name),
			zap.Stringer("outcome", r.Outcome),
			zap.Duration("took", r.Duration),
		}
		if r.Outcome == models.OutcomeFailed {
			logger.Warn("url failed", append(fields, zap.Error(r.Err))...)
		} else {
			logger.Debug("url processed", append(fields, zap.String("doc_id", r.DocID))...)
		}
		cr.Report(r)
	}

	s := cr.Summary()
	logger.Info("ingestion statistics",
		zap.Int("total", s.Total),
		zap.Int("added", s.Added),
		zap.Int("existing", s.Existed),
		zap.Int("failed", s.Failed))
	if err := ctx.Err(); err != nil {
		logger.Warn("reporting finished after cancel", zap.Error(err))
	}
	return nil
}

// Finish prints the closing summary line, followed by the failed URLs
// when there are any.
func (cr *ConsoleReporter) Finish() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	s := cr.summary
	fmt.Fprintf(cr.out, "Done: %d urls, %d added, %d already existed, %d failed\n",
		s.Total, s.Added, s.Existed, s.Failed)
	if len(cr.failed) == 0 {
		return
	}
	fmt.Fprintln(cr.out, "Failed URLs:")
	for _, r := range cr.failed {
		fmt.Fprintln(cr.out, "  "+r.URL)
	}
}

// Summary returns the counts so far.
func (cr *ConsoleReporter) Summary() models.Summary {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.summary
}

// Line renders the console line for a single result.
func Line(r models.Result) string {
	label := r.Name
	if label == "" {
		label = r.URL
	}

	switch r.Outcome {
	case models.OutcomeAdded:
		return "Added: " + label
	case models.OutcomeExists:
		return "Already exists: " + label
	default:
		verb := "check"
		if errors.Is(r.Err, ingestor.ErrInsert) {
			verb = "add"
		}
		return fmt.Sprintf("Failed to %s %s: %v", verb, label, r.Err)
	}
}
