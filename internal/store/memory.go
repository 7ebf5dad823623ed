package store

import (
	"context"
	"strconv"
	"sync"

	"questionpaper-ingest/internal/models"
)

// MemoryStore is an in-process Store used where no Firestore is available.
type MemoryStore struct {
	mu      sync.Mutex
	records []models.Record
	nextID  int
}

// NewMemoryStore returns a store pre-populated with seed.
func NewMemoryStore(seed ...models.Record) *MemoryStore {
	m := &MemoryStore{}
	for _, rec := range seed {
		m.insertLocked(rec)
	}
	return m
}

func (m *MemoryStore) FindByURL(ctx context.Context, url string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Record
	for _, rec := range m.records {
		if rec.URL == url {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec models.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec), nil
}

func (m *MemoryStore) insertLocked(rec models.Record) string {
	m.nextID++
	if rec.ID == "" {
		rec.ID = "mem-" + strconv.Itoa(m.nextID)
	}
	m.records = append(m.records, rec)
	return rec.ID
}

// Records returns a copy of everything stored, in insertion order.
func (m *MemoryStore) Records() []models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Record, len(m.records))
	copy(out, m.records)
	return out
}

func (m *MemoryStore) Close() error { return nil }
