package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
)

type memoryEntry struct {
	docs    []*document.Document
	expires time.Time
}

// MemoryCache is the in-process ListCache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	gens    map[string]uint64
	subs    map[int]func(document.Invalidation)
	nextSub int
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		gens:    make(map[string]uint64),
		subs:    make(map[int]func(document.Invalidation)),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, clinicID string) ([]*document.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[clinicID]
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && m.now().After(e.expires) {
		delete(m.entries, clinicID)
		return nil, false, nil
	}
	return cloneAll(e.docs), true, nil
}

func (m *MemoryCache) Generation(ctx context.Context, clinicID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[clinicID], nil
}

func (m *MemoryCache) Set(ctx context.Context, clinicID string, gen uint64, docs []*document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[clinicID] != gen {
		return nil
	}
	m.entries[clinicID] = memoryEntry{docs: cloneAll(docs), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) Invalidate(ctx context.Context, inv document.Invalidation) error {
	m.mu.Lock()
	m.gens[inv.ClinicID]++
	delete(m.entries, inv.ClinicID)
	subs := make([]func(document.Invalidation), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(inv)
	}
	return nil
}

// Subscribe registers fn and blocks until ctx is done. Handlers run
// synchronously inside Invalidate.
func (m *MemoryCache) Subscribe(ctx context.Context, fn func(document.Invalidation)) error {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
	return nil
}
