package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Store used for local development and unit tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), now: time.Now}
}

// WithClock replaces the time source. Tests use it for deterministic ordering.
func (m *MemoryRepo) WithClock(now func() time.Time) *MemoryRepo {
	m.now = now
	return m
}

func (m *MemoryRepo) Insert(ctx context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	doc.CreatedAt = m.now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	m.store[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryRepo) FindByID(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) Find(ctx context.Context, f Filter) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		if d.ClinicID != f.ClinicID || !d.Matches(f.Category, f.Search) {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryRepo) Update(ctx context.Context, id string, expectedVersion int, patch document.Patch) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	patch.Apply(d)
	d.Version = expectedVersion + 1
	d.UpdatedAt = m.now().UTC()
	return d.Clone(), nil
}

func (m *MemoryRepo) SetShared(ctx context.Context, id string, shared bool) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.IsSharedWithPatients != shared {
		d.IsSharedWithPatients = shared
		d.UpdatedAt = m.now().UTC()
	}
	return d.Clone(), nil
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func (m *MemoryRepo) Ping(ctx context.Context) error { return nil }
