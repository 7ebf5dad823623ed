package models

import (
	"errors"
	"time"
)

// Record is the metadata stored for one hosted PDF.
type Record struct {
	ID   string `firestore:"-"` // Document ID, filled on reads and after insert
	Name string `firestore:"name"`
	URL  string `firestore:"url"`
}

// Validate checks that the record can be written. An empty name is allowed.
func (r Record) Validate() error {
	if r.URL == "" {
		return errors.New("record url is empty")
	}
	return nil
}

// Outcome is what happened to a single URL during a run.
type Outcome int

const (
	OutcomeAdded Outcome = iota + 1
	OutcomeExists
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeExists:
		return "exists"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the per-URL report produced by the ingestor.
type Result struct {
	URL      string
	Name     string
	Outcome  Outcome
	DocID    string // Set when Outcome is OutcomeAdded
	Err      error  // Set when Outcome is OutcomeFailed
	Duration time.Duration
}

// Summary aggregates results over a run.
type Summary struct {
	Total   int
	Added   int
	Existed int
	Failed  int
}

// Add counts r into the summary.
func (s *Summary) Add(r Result) {
	s.Total++
	switch r.Outcome {
	case OutcomeAdded:
		s.Added++
	case OutcomeExists:
		s.Existed++
	case OutcomeFailed:
		s.Failed++
	}
}
