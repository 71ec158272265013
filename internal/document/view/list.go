// Package view holds the per-session state behind the clinic document list
// and editor pages. Views are not safe for concurrent use.
package view

import (
	"context"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
)

// Empty-state messages.
const (
	MsgNoDocuments = "No documents yet. Create your first document to get started."
	MsgNoMatches   = "No documents match your filters."
)

// ClinicResolver resolves the acting doctor's clinic.
type ClinicResolver interface {
	ClinicFor(ctx context.Context, sess *sessions.Session) (string, error)
}

// ActionError is returned by a failed quick action. The local list is left
// as it was.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string { return "Failed to " + e.Action + ": " + e.Err.Error() }
func (e *ActionError) Unwrap() error { return e.Err }

// ListView holds the full document set of one clinic and filters it locally.
type ListView struct {
	repo    service.Repository
	clinics ClinicResolver
	session *sessions.Session

	clinicID string
	docs     []*document.Document
	category document.Category
	search   string

	// Banner is the page-level error of the last Load, empty on success.
	Banner string
}

func NewListView(repo service.Repository, clinics ClinicResolver, sess *sessions.Session) *ListView {
	return &ListView{repo: repo, clinics: clinics, session: sess}
}

// Load fetches the clinic's unfiltered list. On failure Banner is set and
// the previously loaded list is kept.
func (v *ListView) Load(ctx context.Context) error {
	if v.clinicID == "" {
		clinicID, err := v.clinics.ClinicFor(ctx, v.session)
		if err != nil {
			v.Banner = err.Error()
			return err
		}
		v.clinicID = clinicID
	}
	docs, err := v.repo.List(ctx, v.clinicID, "", "")
	if err != nil {
		v.Banner = err.Error()
		return err
	}
	v.Banner = ""
	v.docs = docs
	return nil
}

// ClinicID is the resolved clinic, empty before a successful Load.
func (v *ListView) ClinicID() string { return v.clinicID }

func (v *ListView) SetCategory(c document.Category) { v.category = c }
func (v *ListView) SetSearch(s string)              { v.search = s }

// All returns the full fetched set.
func (v *ListView) All() []*document.Document { return v.docs }

// Visible returns the fetched documents passing the active filters, in
// fetch order.
func (v *ListView) Visible() []*document.Document {
	out := make([]*document.Document, 0, len(v.docs))
	for _, d := range v.docs {
		if d.Matches(v.category, v.search) {
			out = append(out, d)
		}
	}
	return out
}

// EmptyMessage is shown when Visible is empty.
func (v *ListView) EmptyMessage() string {
	if len(v.docs) == 0 {
		return MsgNoDocuments
	}
	return MsgNoMatches
}

func (v *ListView) find(id string) *document.Document {
	for _, d := range v.docs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Delete removes id after confirm approves it. A declined confirmation
// returns (false, nil) without contacting the repository.
func (v *ListView) Delete(ctx context.Context, id string, confirm func(*document.Document) bool) (bool, error) {
	if confirm == nil || !confirm(v.find(id)) {
		return false, nil
	}
	if _, err := v.repo.Delete(ctx, id); err != nil {
		return false, &ActionError{Action: "delete document", Err: err}
	}
	kept := make([]*document.Document, 0, len(v.docs))
	for _, d := range v.docs {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	v.docs = kept
	return true, nil
}

// Duplicate copies id as the session user and prepends the copy.
func (v *ListView) Duplicate(ctx context.Context, id string) (*document.Document, error) {
	var actor string
	if v.session != nil {
		actor = v.session.UserID
	}
	cp, err := v.repo.Duplicate(ctx, id, actor)
	if err != nil {
		return nil, &ActionError{Action: "duplicate document", Err: err}
	}
	v.docs = append([]*document.Document{cp}, v.docs...)
	return cp, nil
}

// ToggleShare sets the sharing flag and replaces the row with the returned
// document.
func (v *ListView) ToggleShare(ctx context.Context, id string, shared bool) (*document.Document, error) {
	updated, err := v.repo.ToggleShare(ctx, id, shared)
	if err != nil {
		return nil, &ActionError{Action: "update sharing", Err: err}
	}
	for i, d := range v.docs {
		if d.ID == id {
			v.docs[i] = updated
		}
	}
	return updated, nil
}
