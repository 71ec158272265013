// Package service implements the clinic document repository: validation,
// versioning, duplication and sharing on top of a repository.Store.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/cache"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/repository"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/metrics"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// maxUpdateAttempts bounds the read-apply-write cycle of Update when the
// conditional write keeps losing to concurrent writers.
const maxUpdateAttempts = 3

// Store failure messages.
const (
	msgFetchList  = "Failed to fetch documents"
	msgFetchOne   = "Failed to fetch document"
	msgCreate     = "Failed to create document"
	msgUpdate     = "Failed to update document"
	msgDelete     = "Failed to delete document"
	msgDuplicate  = "Failed to duplicate document"
	msgShare      = "Failed to update sharing status"
	msgConflicted = "Document was modified concurrently, please retry"
)

// Repository is the document access layer used by the HTTP handlers and views.
type Repository interface {
	List(ctx context.Context, clinicID string, category document.Category, search string) ([]*document.Document, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	Create(ctx context.Context, in document.CreateInput) (*document.Document, error)
	Update(ctx context.Context, id string, patch document.Patch) (*document.Document, error)
	Delete(ctx context.Context, id string) (bool, error)
	Duplicate(ctx context.Context, id, actingUserID string) (*document.Document, error)
	ToggleShare(ctx context.Context, id string, shared bool) (*document.Document, error)
}

// Service is the Repository implementation. The list cache is optional.
type Service struct {
	store repository.Store
	cache cache.ListCache
	now   func() time.Time
}

func New(store repository.Store, lc cache.ListCache) *Service {
	return &Service{store: store, cache: lc, now: time.Now}
}

var _ Repository = (*Service)(nil)

// observe records the outcome of an operation.
func observe(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, document.ErrValidation):
		outcome = "validation"
	case errors.Is(err, document.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, document.ErrAuth):
		outcome = "auth"
	case errors.Is(err, document.ErrConflict):
		outcome = "conflict"
	default:
		outcome = "store"
	}
	metrics.DocumentOperations.WithLabelValues(op, outcome).Inc()
}

func storeErr(msg string, err error) error {
	return &document.StoreError{Message: msg, Err: err}
}

func required(value, msg string) error {
	if err := validation.Validate(strings.TrimSpace(value), validation.Required.Error(msg)); err != nil {
		return &document.ValidationError{Message: err.Error()}
	}
	return nil
}

var categoryRule = func() validation.Rule {
	allowed := make([]interface{}, 0, len(document.Categories))
	for _, c := range document.Categories {
		allowed = append(allowed, string(c))
	}
	return validation.In(allowed...).Error(document.MsgInvalidCategory)
}()

func validCategory(c document.Category) error {
	if err := validation.Validate(string(c), categoryRule); err != nil {
		return &document.ValidationError{Message: err.Error()}
	}
	return nil
}

// invalidate drops the clinic's cached list and announces the mutation. The
// mutation has already been committed, so failures are only logged.
func (s *Service) invalidate(ctx context.Context, clinicID, documentID, op string) {
	metrics.ListInvalidations.WithLabelValues(op).Inc()
	if s.cache == nil {
		return
	}
	inv := document.Invalidation{
		Route:      document.ListRoute,
		ClinicID:   clinicID,
		DocumentID: documentID,
		Op:         op,
		At:         s.now().UTC(),
	}
	if err := s.cache.Invalidate(ctx, inv); err != nil {
		logger.Warnf("document %s: invalidate %s for clinic %s: %v", op, document.ListRoute, clinicID, err)
	}
}

func (s *Service) List(ctx context.Context, clinicID string, category document.Category, search string) (docs []*document.Document, err error) {
	defer func() { observe("list", err) }()

	if err := validCategory(category); err != nil {
		return nil, err
	}
	cacheable := s.cache != nil && category == "" && strings.TrimSpace(search) == ""
	var gen uint64
	if cacheable {
		cached, ok, cerr := s.cache.Get(ctx, clinicID)
		switch {
		case cerr != nil:
			metrics.ListCacheLookups.WithLabelValues("error").Inc()
			logger.Warnf("document list cache get clinic=%s: %v", clinicID, cerr)
		case ok:
			metrics.ListCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.ListCacheLookups.WithLabelValues("miss").Inc()
		}
		// taken before the read so an invalidation racing the fetch voids the Set below
		if gen, cerr = s.cache.Generation(ctx, clinicID); cerr != nil {
			logger.Warnf("document list cache generation clinic=%s: %v", clinicID, cerr)
			cacheable = false
		}
	}

	docs, err = s.store.Find(ctx, repository.Filter{ClinicID: clinicID, Category: category, Search: search})
	if err != nil {
		return nil, storeErr(msgFetchList, err)
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	if cacheable {
		if cerr := s.cache.Set(ctx, clinicID, gen, docs); cerr != nil {
			logger.Warnf("document list cache set clinic=%s: %v", clinicID, cerr)
		}
	}
	return docs, nil
}

func (s *Service) get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, document.NotFound()
		}
		return nil, storeErr(msgFetchOne, err)
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (d *document.Document, err error) {
	defer func() { observe("get", err) }()
	return s.get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in document.CreateInput) (d *document.Document, err error) {
	defer func() { observe("create", err) }()

	if err := required(in.Title, document.MsgTitleRequired); err != nil {
		return nil, err
	}
	if err := required(in.Content, document.MsgContentRequired); err != nil {
		return nil, err
	}
	if err := validCategory(in.Category); err != nil {
		return nil, err
	}

	d = &document.Document{
		ClinicID:  in.ClinicID,
		CreatedBy: in.CreatedBy,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Category:  in.Category,
		Tags:      append([]string{}, in.Tags...),
		Version:   1,
	}
	if in.IsTemplate != nil {
		d.IsTemplate = *in.IsTemplate
	}
	if in.IsSharedWithPatients != nil {
		d.IsSharedWithPatients = *in.IsSharedWithPatients
	}
	if err := s.store.Insert(ctx, d); err != nil {
		return nil, storeErr(msgCreate, err)
	}
	logger.L().Info().Str("document_id", d.ID).Str("clinic_id", d.ClinicID).Msg("document created")
	s.invalidate(ctx, d.ClinicID, d.ID, "create")
	return d, nil
}

// normalizePatch validates the fields present in patch and trims the title.
func normalizePatch(patch document.Patch) (document.Patch, error) {
	if patch.Title != nil {
		if err := required(*patch.Title, document.MsgTitleRequired); err != nil {
			return patch, err
		}
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if patch.Content != nil {
		if err := required(*patch.Content, document.MsgContentRequired); err != nil {
			return patch, err
		}
	}
	if patch.Category != nil {
		if err := validCategory(*patch.Category); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

// Update applies patch with a conditional write keyed on the version read
// just before it. A lost race re-reads and retries; after maxUpdateAttempts
// the caller gets a ConflictError.
func (s *Service) Update(ctx context.Context, id string, patch document.Patch) (d *document.Document, err error) {
	defer func() { observe("update", err) }()

	patch, err = normalizePatch(patch)
	if err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, document.NotFound()
			}
			return nil, storeErr(msgUpdate, err)
		}
		updated, err := s.store.Update(ctx, id, current.Version, patch)
		switch {
		case err == nil:
			logger.L().Info().Str("document_id", id).Int("version", updated.Version).Msg("document updated")
			s.invalidate(ctx, updated.ClinicID, id, "update")
			return updated, nil
		case errors.Is(err, repository.ErrVersionConflict):
			logger.Debugf("document %s: version %d moved on (attempt %d)", id, current.Version, attempt)
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, document.NotFound()
		default:
			return nil, storeErr(msgUpdate, err)
		}
	}
	return nil, &document.ConflictError{Message: msgConflicted}
}

// Delete removes the document. Deleting an absent id succeeds.
func (s *Service) Delete(ctx context.Context, id string) (ok bool, err error) {
	defer func() { observe("delete", err) }()

	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, storeErr(msgDelete, err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return false, storeErr(msgDelete, err)
	}
	logger.L().Info().Str("document_id", id).Str("clinic_id", existing.ClinicID).Msg("document deleted")
	s.invalidate(ctx, existing.ClinicID, id, "delete")
	return true, nil
}

// Duplicate copies the document into a new one owned by actingUserID with
// sharing off and version 1.
func (s *Service) Duplicate(ctx context.Context, id, actingUserID string) (d *document.Document, err error) {
	defer func() { observe("duplicate", err) }()

	original, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, document.NotFound()
		}
		return nil, storeErr(msgDuplicate, err)
	}
	if strings.TrimSpace(actingUserID) == "" {
		return nil, &document.AuthError{Message: document.MsgNotAuthenticated}
	}

	d = &document.Document{
		ClinicID:             original.ClinicID,
		CreatedBy:            actingUserID,
		Title:                original.Title,
		Content:              original.Content,
		Category:             original.Category,
		IsTemplate:           original.IsTemplate,
		IsSharedWithPatients: false,
		Tags:                 append([]string{}, original.Tags...),
		Version:              1,
	}
	if err := s.store.Insert(ctx, d); err != nil {
		return nil, storeErr(msgDuplicate, err)
	}
	logger.L().Info().Str("document_id", d.ID).Str("source_id", id).Msg("document duplicated")
	s.invalidate(ctx, d.ClinicID, d.ID, "duplicate")
	return d, nil
}

// ToggleShare sets is_shared_with_patients to exactly shared. The version is
// unchanged.
func (s *Service) ToggleShare(ctx context.Context, id string, shared bool) (d *document.Document, err error) {
	defer func() { observe("share", err) }()

	d, err = s.store.SetShared(ctx, id, shared)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, document.NotFound()
		}
		return nil, storeErr(msgShare, err)
	}
	s.invalidate(ctx, d.ClinicID, id, "share")
	return d, nil
}
