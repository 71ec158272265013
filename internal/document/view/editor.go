package view

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
)

// NewDocumentID is the route id that puts the editor in create mode.
const NewDocumentID = "new"

var errNotLoaded = errors.New("editor not loaded")

// Form is the editable state. Tags are kept as the comma-separated string
// the user types.
type Form struct {
	Title                string
	Content              string
	Category             document.Category
	IsTemplate           bool
	IsSharedWithPatients bool
	Tags                 string
}

// Editor backs the create/edit page of a single document.
type Editor struct {
	repo    service.Repository
	clinics ClinicResolver
	session *sessions.Session

	id       string
	clinicID string
	original *document.Document

	Form Form
	// Error is the message of the last failed Load or Submit.
	Error string
}

func NewEditor(repo service.Repository, clinics ClinicResolver, sess *sessions.Session, routeID string) *Editor {
	return &Editor{repo: repo, clinics: clinics, session: sess, id: routeID}
}

func (e *Editor) IsNew() bool { return e.id == NewDocumentID }

// Load resolves the clinic and, in edit mode, prefills Form from the stored
// document.
func (e *Editor) Load(ctx context.Context) error {
	clinicID, err := e.clinics.ClinicFor(ctx, e.session)
	if err != nil {
		e.Error = err.Error()
		return err
	}
	e.clinicID = clinicID
	if e.IsNew() {
		e.Error = ""
		return nil
	}
	d, err := e.repo.Get(ctx, e.id)
	if err != nil {
		e.Error = err.Error()
		return err
	}
	e.original = d
	e.Form = Form{
		Title:                d.Title,
		Content:              d.Content,
		Category:             d.Category,
		IsTemplate:           d.IsTemplate,
		IsSharedWithPatients: d.IsSharedWithPatients,
		Tags:                 JoinTags(d.Tags),
	}
	e.Error = ""
	return nil
}

// Changes returns a patch holding only the fields that differ from the
// loaded document.
func (e *Editor) Changes() document.Patch {
	var p document.Patch
	if e.original == nil {
		return p
	}
	f, o := e.Form, e.original
	if f.Title != o.Title {
		p.Title = &f.Title
	}
	if f.Content != o.Content {
		p.Content = &f.Content
	}
	if f.Category != o.Category {
		p.Category = &f.Category
	}
	if f.IsTemplate != o.IsTemplate {
		p.IsTemplate = &f.IsTemplate
	}
	if f.IsSharedWithPatients != o.IsSharedWithPatients {
		p.IsSharedWithPatients = &f.IsSharedWithPatients
	}
	if tags := ParseTags(f.Tags); !slices.Equal(tags, o.Tags) {
		p.Tags = &tags
	}
	return p
}

// Submit creates or updates the document and returns the page to navigate
// to. On failure Form is left untouched and Error is set.
func (e *Editor) Submit(ctx context.Context) (string, error) {
	if e.clinicID == "" || (!e.IsNew() && e.original == nil) {
		e.Error = errNotLoaded.Error()
		return "", errNotLoaded
	}
	if e.IsNew() {
		in := document.CreateInput{
			ClinicID:             e.clinicID,
			CreatedBy:            e.session.UserID,
			Title:                e.Form.Title,
			Content:              e.Form.Content,
			Category:             e.Form.Category,
			IsTemplate:           &e.Form.IsTemplate,
			IsSharedWithPatients: &e.Form.IsSharedWithPatients,
			Tags:                 ParseTags(e.Form.Tags),
		}
		if _, err := e.repo.Create(ctx, in); err != nil {
			e.Error = "Failed to create document: " + err.Error()
			return "", err
		}
		e.Error = ""
		return document.ListRoute, nil
	}

	patch := e.Changes()
	if patch.Empty() {
		e.Error = ""
		return document.ListRoute, nil
	}
	if _, err := e.repo.Update(ctx, e.id, patch); err != nil {
		e.Error = "Failed to update document: " + err.Error()
		return "", err
	}
	e.Error = ""
	return document.ListRoute, nil
}

// ParseTags splits a comma-separated tag string, trimming each token and
// dropping empty ones.
func ParseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags is the inverse of ParseTags, used to prefill the form.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}
