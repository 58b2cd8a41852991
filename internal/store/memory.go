package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/relaysim/internal/schematic"
)

// InMemoryStore implements SchematicStore with in-memory storage.
// Useful for testing and ephemeral sessions.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // keyed by name
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

// Save implements SchematicStore. Documents are copied through YAML so
// later edits by the caller do not leak into the store.
func (s *InMemoryStore) Save(ctx context.Context, doc *schematic.Document) (*Record, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schematic: %w", err)
	}
	stored, err := cloneDocument(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec, exists := s.records[doc.Name]
	if !exists {
		rec = Record{ID: uuid.NewString(), Name: doc.Name, CreatedAt: now}
	}
	rec.Document = stored
	rec.UpdatedAt = now
	s.records[doc.Name] = rec

	return copyRecord(rec)
}

// Load implements SchematicStore.
func (s *InMemoryStore) Load(ctx context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return copyRecord(rec)
}

// List implements SchematicStore.
func (s *InMemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		c, err := copyRecord(rec)
		if err != nil {
			return nil, err
		}
		records = append(records, *c)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Delete implements SchematicStore.
func (s *InMemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.records, name)
	return nil
}

// Close implements SchematicStore.
func (s *InMemoryStore) Close() error {
	return nil
}

func copyRecord(rec Record) (*Record, error) {
	doc, err := cloneDocument(rec.Document)
	if err != nil {
		return nil, err
	}
	rec.Document = doc
	return &rec, nil
}

func cloneDocument(doc *schematic.Document) (*schematic.Document, error) {
	data, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	return schematic.Parse(data)
}
