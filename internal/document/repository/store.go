package repository

import (
	"context"
	"errors"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version changed")
)

// Filter narrows Find to one clinic and, optionally, a category and a
// case-insensitive search over title and tags.
type Filter struct {
	ClinicID string
	Category document.Category
	Search   string
}

// Store is the durable owner of clinic documents. Implementations assign
// identifiers and timestamps and return rows ordered by updated_at descending.
type Store interface {
	// Insert persists d, filling ID, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, d *document.Document) error
	// FindByID returns ErrNotFound when no row has the id.
	FindByID(ctx context.Context, id string) (*document.Document, error)
	// Find returns every matching row; an empty result is not an error.
	Find(ctx context.Context, f Filter) ([]*document.Document, error)
	// Update applies patch and sets version = expectedVersion+1 only if the
	// stored version still equals expectedVersion (ErrVersionConflict otherwise).
	Update(ctx context.Context, id string, expectedVersion int, patch document.Patch) (*document.Document, error)
	// SetShared sets is_shared_with_patients without touching the version.
	SetShared(ctx context.Context, id string, shared bool) (*document.Document, error)
	// Delete removes the row; deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
