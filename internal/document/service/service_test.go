package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/cache"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/repository"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps MemoryRepo with injectable failures.
type flakyStore struct {
	*repository.MemoryRepo
	findErr     error
	insertErr   error
	deleteErr   error
	conflicts   int // Update returns ErrVersionConflict this many times
	updateCalls int
}

func (f *flakyStore) Find(ctx context.Context, flt repository.Filter) ([]*document.Document, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.MemoryRepo.Find(ctx, flt)
}

func (f *flakyStore) Insert(ctx context.Context, d *document.Document) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryRepo.Insert(ctx, d)
}

func (f *flakyStore) Update(ctx context.Context, id string, v int, p document.Patch) (*document.Document, error) {
	f.updateCalls++
	if f.conflicts > 0 {
		f.conflicts--
		return nil, repository.ErrVersionConflict
	}
	return f.MemoryRepo.Update(ctx, id, v, p)
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryRepo.Delete(ctx, id)
}

func clock() func() time.Time {
	t := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newService(t *testing.T) (*Service, *flakyStore, *cache.MemoryCache) {
	t.Helper()
	store := &flakyStore{MemoryRepo: repository.NewMemoryRepo().WithClock(clock())}
	lc := cache.NewMemoryCache(time.Minute)
	return New(store, lc), store, lc
}

func boolPtr(b bool) *bool { return &b }

func create(t *testing.T, s *Service, title string, cat document.Category, tags ...string) *document.Document {
	t.Helper()
	d, err := s.Create(context.Background(), document.CreateInput{
		ClinicID: "clinic-1", CreatedBy: "doctor-1", Title: title, Content: "Body text", Category: cat, Tags: tags,
	})
	require.NoError(t, err)
	return d
}

func TestCreate(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	d, err := s.Create(ctx, document.CreateInput{
		ClinicID: "clinic-1", CreatedBy: "doctor-1", Title: "  Consent Form  ", Content: "\n  keep me  \n",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "Consent Form", d.Title)
	assert.Equal(t, "\n  keep me  \n", d.Content)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, []string{}, d.Tags)
	assert.False(t, d.IsTemplate)
	assert.False(t, d.IsSharedWithPatients)
	assert.Equal(t, document.Category(""), d.Category)

	d, err = s.Create(ctx, document.CreateInput{
		ClinicID: "clinic-1", CreatedBy: "doctor-1", Title: "Intake", Content: "x",
		Category: document.CategoryForms, IsTemplate: boolPtr(true), IsSharedWithPatients: boolPtr(true), Tags: []string{"new", "adult"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "adult"}, d.Tags)
	assert.True(t, d.IsTemplate)
	assert.True(t, d.IsSharedWithPatients)
}

func TestCreateValidation(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   document.CreateInput
		msg  string
	}{
		{"blank title", document.CreateInput{Title: "  ", Content: "x"}, document.MsgTitleRequired},
		{"blank content", document.CreateInput{Title: "Form A", Content: " "}, document.MsgContentRequired},
		{"title checked first", document.CreateInput{Title: "", Content: ""}, document.MsgTitleRequired},
		{"unknown category", document.CreateInput{Title: "A", Content: "x", Category: "billing"}, document.MsgInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.in)
			require.ErrorIs(t, err, document.ErrValidation)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestUpdateBumpsVersionAndKeepsOtherFields(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	d := create(t, s, "Sterilization Protocol", document.CategoryProtocols, "osha")

	content := "Updated steps"
	got, err := s.Update(ctx, d.ID, document.Patch{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "Updated steps", got.Content)
	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, d.Category, got.Category)
	assert.Equal(t, d.Tags, got.Tags)
	assert.Equal(t, d.ClinicID, got.ClinicID)

	title := "  Renamed  "
	got, err = s.Update(ctx, d.ID, document.Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "Renamed", got.Title)
}

func TestUpdateErrors(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	title := "x"
	_, err := s.Update(ctx, "nonexistent-id", document.Patch{Title: &title})
	require.ErrorIs(t, err, document.ErrNotFound)
	assert.Equal(t, "Document not found", err.Error())

	d := create(t, s, "Doc", "")
	blank := "   "
	_, err = s.Update(ctx, d.ID, document.Patch{Content: &blank})
	require.ErrorIs(t, err, document.ErrValidation)
	assert.Equal(t, document.MsgContentRequired, err.Error())

	bad := document.Category("billing")
	_, err = s.Update(ctx, d.ID, document.Patch{Category: &bad})
	require.ErrorIs(t, err, document.ErrValidation)
}

func TestUpdateRetriesLostRaces(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	d := create(t, s, "Doc", "")

	store.conflicts = 2
	title := "After retries"
	got, err := s.Update(ctx, d.ID, document.Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 3, store.updateCalls)

	store.conflicts = maxUpdateAttempts
	store.updateCalls = 0
	_, err = s.Update(ctx, d.ID, document.Patch{Title: &title})
	require.ErrorIs(t, err, document.ErrConflict)
	assert.Equal(t, maxUpdateAttempts, store.updateCalls)
}

func TestDelete(t *testing.T) {
	s, store, _ := newService(t)
	ctx := context.Background()
	d := create(t, s, "Doc", "")

	ok, err := s.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Get(ctx, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)

	ok, err = s.Delete(ctx, d.ID)
	require.NoError(t, err, "delete of an absent id is tolerated")
	assert.True(t, ok)

	other := create(t, s, "Other", "")
	store.deleteErr = errors.New("connection reset")
	ok, err = s.Delete(ctx, other.ID)
	require.ErrorIs(t, err, document.ErrStore)
	assert.False(t, ok)
	assert.Equal(t, "Failed to delete document: connection reset", err.Error())
}

func TestDuplicate(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	src, err := s.Create(ctx, document.CreateInput{
		ClinicID: "clinic-1", CreatedBy: "author", Title: "Post-op", Content: "Rest",
		Category: document.CategoryInstructions, IsTemplate: boolPtr(true), IsSharedWithPatients: boolPtr(true), Tags: []string{"surgery"},
	})
	require.NoError(t, err)
	content := "Rest and ice"
	src, err = s.Update(ctx, src.ID, document.Patch{Content: &content})
	require.NoError(t, err)
	require.Equal(t, 2, src.Version)

	cp, err := s.Duplicate(ctx, src.ID, "doctor-2")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, "doctor-2", cp.CreatedBy)
	assert.False(t, cp.IsSharedWithPatients)
	assert.Equal(t, 1, cp.Version)
	assert.Equal(t, src.Title, cp.Title)
	assert.Equal(t, src.Content, cp.Content)
	assert.Equal(t, src.Category, cp.Category)
	assert.Equal(t, src.Tags, cp.Tags)
	assert.Equal(t, src.IsTemplate, cp.IsTemplate)
	assert.Equal(t, src.ClinicID, cp.ClinicID)

	_, err = s.Duplicate(ctx, src.ID, "")
	require.ErrorIs(t, err, document.ErrAuth)
	assert.Equal(t, "Not authenticated", err.Error())

	_, err = s.Duplicate(ctx, "missing", "doctor-2")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestToggleShareIsIdempotent(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	d := create(t, s, "Handout", document.CategoryInstructions)

	first, err := s.ToggleShare(ctx, d.ID, true)
	require.NoError(t, err)
	second, err := s.ToggleShare(ctx, d.ID, true)
	require.NoError(t, err)
	assert.True(t, second.IsSharedWithPatients)
	assert.Equal(t, 1, second.Version)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)

	off, err := s.ToggleShare(ctx, d.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsSharedWithPatients)
	assert.Equal(t, 1, off.Version)

	_, err = s.ToggleShare(ctx, "missing", true)
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestListFiltersAndOrder(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	a := create(t, s, "Office Policy", document.CategoryPolicies)
	b := create(t, s, "New Patient Form", document.CategoryForms, "intake")
	c := create(t, s, "Consent", document.CategoryForms, "Policy-Acknowledgement")
	_, err := s.Create(ctx, document.CreateInput{ClinicID: "clinic-2", CreatedBy: "x", Title: "Other clinic policy", Content: "x"})
	require.NoError(t, err)

	all, err := s.List(ctx, "clinic-1", "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, ids(all))

	forms, err := s.List(ctx, "clinic-1", document.CategoryForms, "")
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, b.ID}, ids(forms))

	policy, err := s.List(ctx, "clinic-1", "", "policy")
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, a.ID}, ids(policy))

	none, err := s.List(ctx, "clinic-1", document.CategoryInsurance, "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListStoreFailure(t *testing.T) {
	s, store, _ := newService(t)
	store.findErr = errors.New("dial tcp: refused")
	_, err := s.List(context.Background(), "clinic-1", document.CategoryForms, "")
	require.ErrorIs(t, err, document.ErrStore)
	assert.Equal(t, "Failed to fetch documents: dial tcp: refused", err.Error())
}

func TestListCacheInvalidatedByMutations(t *testing.T) {
	s, store, lc := newService(t)
	ctx := context.Background()
	d := create(t, s, "Doc", "")

	hitsBefore := testutil.ToFloat64(metrics.ListCacheLookups.WithLabelValues("hit"))
	_, err := s.List(ctx, "clinic-1", "", "")
	require.NoError(t, err)
	_, ok, err := lc.Get(ctx, "clinic-1")
	require.NoError(t, err)
	require.True(t, ok, "unfiltered list populates the cache")

	// served from cache even though the store now fails
	store.findErr = errors.New("down")
	cached, err := s.List(ctx, "clinic-1", "", "")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(metrics.ListCacheLookups.WithLabelValues("hit")))
	store.findErr = nil

	var seen []document.Invalidation
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = lc.Subscribe(subCtx, func(inv document.Invalidation) { seen = append(seen, inv) }) }()
	require.Eventually(t, func() bool {
		// wait until the subscription is live using an invalidation for another clinic
		_ = lc.Invalidate(ctx, document.Invalidation{ClinicID: "warmup"})
		return len(seen) > 0
	}, time.Second, 5*time.Millisecond)
	seen = nil

	_, err = s.ToggleShare(ctx, d.ID, true)
	require.NoError(t, err)
	_, ok, err = lc.Get(ctx, "clinic-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, seen, 1)
	assert.Equal(t, document.ListRoute, seen[0].Route)
	assert.Equal(t, "clinic-1", seen[0].ClinicID)
	assert.Equal(t, d.ID, seen[0].DocumentID)
	assert.Equal(t, "share", seen[0].Op)
}

func TestOperationsAreCounted(t *testing.T) {
	s, _, _ := newService(t)
	before := testutil.ToFloat64(metrics.DocumentOperations.WithLabelValues("get", "not_found"))
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DocumentOperations.WithLabelValues("get", "not_found")))
}

func ids(docs []*document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

// pausedFind holds the first Find after its snapshot until resume is closed.
type pausedFind struct {
	repository.Store
	once   sync.Once
	taken  chan struct{}
	resume chan struct{}
}

func (p *pausedFind) Find(ctx context.Context, f repository.Filter) ([]*document.Document, error) {
	docs, err := p.Store.Find(ctx, f)
	p.once.Do(func() {
		close(p.taken)
		<-p.resume
	})
	return docs, err
}

func TestListDoesNotCacheSnapshotOlderThanInvalidation(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	caches := map[string]cache.ListCache{
		"memory": cache.NewMemoryCache(time.Minute),
		"redis":  cache.NewRedisCache(client, "race:", time.Minute),
	}
	for name, lc := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := &pausedFind{Store: repository.NewMemoryRepo(), taken: make(chan struct{}), resume: make(chan struct{})}
			s := New(store, lc)

			stale := make(chan []*document.Document, 1)
			go func() {
				docs, err := s.List(ctx, "clinic-1", "", "")
				assert.NoError(t, err)
				stale <- docs
			}()
			<-store.taken

			_, err := s.Create(ctx, document.CreateInput{ClinicID: "clinic-1", CreatedBy: "doctor-1", Title: "Consent", Content: "Body"})
			require.NoError(t, err)
			close(store.resume)
			assert.Empty(t, <-stale)

			docs, err := s.List(ctx, "clinic-1", "", "")
			require.NoError(t, err)
			assert.Len(t, docs, 1, "the committed create must be visible once its invalidation ran")
		})
	}
}
