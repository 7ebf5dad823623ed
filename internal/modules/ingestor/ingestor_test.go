package ingestor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"questionpaper-ingest/internal/metrics"
	"questionpaper-ingest/internal/models"
	"questionpaper-ingest/internal/store"
)

// faultyStore wraps a MemoryStore, counts calls and fails chosen URLs.
type faultyStore struct {
	*store.MemoryStore
	lookupErr map[string]error
	insertErr map[string]error
	lookups   int
	inserts   int
}

func newFaultyStore(seed ...models.Record) *faultyStore {
	return &faultyStore{
		MemoryStore: store.NewMemoryStore(seed...),
		lookupErr:   map[string]error{},
		insertErr:   map[string]error{},
	}
}

func (f *faultyStore) FindByURL(ctx context.Context, url string) ([]models.Record, error) {
	f.lookups++
	if err := f.lookupErr[url]; err != nil {
		return nil, err
	}
	return f.MemoryStore.FindByURL(ctx, url)
}

func (f *faultyStore) Insert(ctx context.Context, rec models.Record) (string, error) {
	f.inserts++
	if err := f.insertErr[rec.URL]; err != nil {
		return "", err
	}
	return f.MemoryStore.Insert(ctx, rec)
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		url       string
		expected  string
		expectErr bool
	}{
		{url: "https://host/a/b/pdf1.pdf", expected: "pdf1.pdf"},
		{url: "https://host/a/b/", expected: ""},
		{url: "https://host", expected: ""},
		{url: "https://host/file.pdf?version=2#page=3", expected: "file.pdf"},
		{url: "https://host/dir/my%20paper.pdf", expected: "my%20paper.pdf"},
		{url: "relative/path/x.pdf", expected: "x.pdf"},
		{url: "https://host/\x7f.pdf", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := DeriveName(tt.url)
			if tt.expectErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("expected ErrInvalidURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIngest_AddsAbsentURL(t *testing.T) {
	s := newFaultyStore()
	ing := New(s, zaptest.NewLogger(t), Options{})

	res := ing.Ingest(context.Background(), "https://h/x/a.pdf")
	if res.Outcome != models.OutcomeAdded {
		t.Fatalf("expected added, got %s (%v)", res.Outcome, res.Err)
	}
	if res.Name != "a.pdf" || res.DocID == "" {
		t.Errorf("unexpected result: %+v", res)
	}

	recs := s.Records()
	if len(recs) != 1 || recs[0].Name != "a.pdf" || recs[0].URL != "https://h/x/a.pdf" {
		t.Errorf("expected exactly one {a.pdf, url} record, got %+v", recs)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	s := newFaultyStore(models.Record{Name: "a.pdf", URL: "https://h/x/a.pdf"})
	ing := New(s, zaptest.NewLogger(t), Options{})
	urls := []string{"https://h/x/a.pdf", "https://h/x/b.pdf"}

	first, err := ing.IngestAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[0].Outcome != models.OutcomeExists || first[1].Outcome != models.OutcomeAdded {
		t.Fatalf("unexpected first run: %+v", first)
	}

	second, err := ing.IngestAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range second {
		if r.Outcome != models.OutcomeExists {
			t.Errorf("expected %s to exist on rerun, got %s", r.URL, r.Outcome)
		}
	}
	if n := len(s.Records()); n != 2 {
		t.Errorf("expected 2 records after reruns, got %d", n)
	}
}

func TestIngest_DuplicateEntriesInList(t *testing.T) {
	s := newFaultyStore()
	ing := New(s, zaptest.NewLogger(t), Options{})

	results, err := ing.IngestAll(context.Background(), []string{"https://h/x/a.pdf", "https://h/x/a.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Outcome != models.OutcomeAdded {
		t.Errorf("expected first to be added, got %s", results[0].Outcome)
	}
	if results[1].Outcome != models.OutcomeExists {
		t.Errorf("expected second to exist, got %s", results[1].Outcome)
	}
	if s.inserts != 1 {
		t.Errorf("expected 1 insert, got %d", s.inserts)
	}
}

func TestIngest_FailuresDoNotStopTheRun(t *testing.T) {
	s := newFaultyStore()
	s.insertErr["https://h/x/a.pdf"] = errors.New("quota exceeded")
	s.lookupErr["https://h/x/b.pdf"] = errors.New("unavailable")
	ing := New(s, zaptest.NewLogger(t), Options{})

	results, err := ing.IngestAll(context.Background(), []string{
		"https://h/x/a.pdf",
		"https://h/x/b.pdf",
		"https://h/\x7f.pdf",
		"https://h/x/c.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	if r := results[0]; r.Outcome != models.OutcomeFailed || !errors.Is(r.Err, ErrInsert) {
		t.Errorf("expected insert failure, got %s %v", r.Outcome, r.Err)
	}
	if r := results[1]; r.Outcome != models.OutcomeFailed || !errors.Is(r.Err, ErrLookup) {
		t.Errorf("expected lookup failure, got %s %v", r.Outcome, r.Err)
	}
	if r := results[2]; r.Outcome != models.OutcomeFailed || !errors.Is(r.Err, ErrInvalidURL) {
		t.Errorf("expected invalid url, got %s %v", r.Outcome, r.Err)
	}
	if r := results[3]; r.Outcome != models.OutcomeAdded {
		t.Errorf("expected later url to be added, got %s %v", r.Outcome, r.Err)
	}

	recs := s.Records()
	if len(recs) != 1 || recs[0].URL != "https://h/x/c.pdf" {
		t.Errorf("expected only c.pdf stored, got %+v", recs)
	}
}

func TestIngest_EmptyNameAccepted(t *testing.T) {
	s := newFaultyStore()
	ing := New(s, zaptest.NewLogger(t), Options{})

	res := ing.Ingest(context.Background(), "https://h/x/")
	if res.Outcome != models.OutcomeAdded {
		t.Fatalf("expected added, got %s (%v)", res.Outcome, res.Err)
	}
	if recs := s.Records(); len(recs) != 1 || recs[0].Name != "" {
		t.Errorf("expected record with empty name, got %+v", recs)
	}
}

func TestIngestAll_Empty(t *testing.T) {
	s := newFaultyStore()
	ing := New(s, zaptest.NewLogger(t), Options{})

	results, err := ing.IngestAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 || s.lookups != 0 || s.inserts != 0 {
		t.Errorf("expected no store operations, got %d lookups %d inserts", s.lookups, s.inserts)
	}
}

func TestIngestAll_Canceled(t *testing.T) {
	s := newFaultyStore()
	ing := New(s, zaptest.NewLogger(t), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := ing.IngestAll(ctx, []string{"https://h/x/a.pdf"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(results) != 0 || s.lookups != 0 {
		t.Errorf("expected nothing attempted after cancel, got %d results", len(results))
	}
}

// slowStore blocks every lookup until its context ends.
type slowStore struct {
	*store.MemoryStore
}

func (s slowStore) FindByURL(ctx context.Context, url string) ([]models.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestIngest_OpTimeout(t *testing.T) {
	ing := New(slowStore{store.NewMemoryStore()}, zaptest.NewLogger(t), Options{OpTimeout: 10 * time.Millisecond})

	res := ing.Ingest(context.Background(), "https://h/x/a.pdf")
	if res.Outcome != models.OutcomeFailed || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected lookup timeout, got %s %v", res.Outcome, res.Err)
	}
	if !errors.Is(res.Err, ErrLookup) {
		t.Errorf("expected ErrLookup, got %v", res.Err)
	}
}

func TestIngest_Metrics(t *testing.T) {
	m := metrics.New()
	s := newFaultyStore(models.Record{Name: "a.pdf", URL: "https://h/x/a.pdf"})
	s.insertErr["https://h/x/c.pdf"] = errors.New("malformed write")
	ing := New(s, zaptest.NewLogger(t), Options{Metrics: m})

	_, err := ing.IngestAll(context.Background(), []string{"https://h/x/a.pdf", "https://h/x/b.pdf", "https://h/x/c.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for outcome, want := range map[string]float64{"exists": 1, "added": 1, "failed": 1} {
		if got := testutil.ToFloat64(m.Records.WithLabelValues(outcome)); got != want {
			t.Errorf("outcome %s: expected %v, got %v", outcome, want, got)
		}
	}
	if got := testutil.ToFloat64(m.StoreOpErrors.WithLabelValues("insert")); got != 1 {
		t.Errorf("expected 1 insert error, got %v", got)
	}
}

func TestExecute(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := newFaultyStore()
	ing := New(s, logger, Options{})

	in := make(chan interface{}, 3)
	in <- "https://h/x/a.pdf"
	in <- 42 // ignored
	in <- "https://h/x/a.pdf"
	close(in)
	out := make(chan interface{}, 3)

	if err := ing.Execute(context.Background(), in, out, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(out)

	var got []models.Outcome
	for item := range out {
		got = append(got, item.(models.Result).Outcome)
	}
	if len(got) != 2 || got[0] != models.OutcomeAdded || got[1] != models.OutcomeExists {
		t.Errorf("unexpected outcomes: %v", got)
	}
}

func TestExecute_DeliversInFlightResultOnCancel(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ing := New(slowStore{store.NewMemoryStore()}, logger, Options{})

	in := make(chan interface{}, 2)
	in <- "https://h/x/a.pdf"
	in <- "https://h/x/b.pdf"
	out := make(chan interface{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := ing.Execute(ctx, in, out, logger)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	close(out)

	var got []models.Result
	for item := range out {
		got = append(got, item.(models.Result))
	}
	if len(got) != 1 {
		t.Fatalf("expected only the in-flight result, got %+v", got)
	}
	if got[0].URL != "https://h/x/a.pdf" || got[0].Outcome != models.OutcomeFailed || !errors.Is(got[0].Err, ErrLookup) {
		t.Errorf("unexpected result: %+v", got[0])
	}
}
