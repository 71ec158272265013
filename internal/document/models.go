package document

import (
	"strings"
	"time"
)

// Category classifies a clinic document. The zero value means "unset".
type Category string

const (
	CategoryPolicies     Category = "policies"
	CategoryProtocols    Category = "protocols"
	CategoryForms        Category = "forms"
	CategoryInstructions Category = "instructions"
	CategoryInsurance    Category = "insurance"
	CategoryOther        Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryPolicies,
	CategoryProtocols,
	CategoryForms,
	CategoryInstructions,
	CategoryInsurance,
	CategoryOther,
}

// Valid reports whether c is unset or one of Categories.
func (c Category) Valid() bool {
	if c == "" {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Label is the human-readable name used by list filters and badges.
func (c Category) Label() string {
	if c == "" {
		return "All"
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Document is a clinic document (policy, protocol, form, ...) as persisted in
// the clinic_documents table / collection.
type Document struct {
	ID                   string    `json:"id" bson:"_id"`
	ClinicID             string    `json:"clinic_id" bson:"clinic_id"`
	CreatedBy            string    `json:"created_by" bson:"created_by"`
	Title                string    `json:"title" bson:"title"`
	Content              string    `json:"content" bson:"content"`
	Category             Category  `json:"category,omitempty" bson:"category,omitempty"`
	IsTemplate           bool      `json:"is_template" bson:"is_template"`
	IsSharedWithPatients bool      `json:"is_shared_with_patients" bson:"is_shared_with_patients"`
	Tags                 []string  `json:"tags" bson:"tags"`
	Version              int       `json:"version" bson:"version"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy so callers never share the tag slice.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Tags = append([]string{}, d.Tags...)
	return &c
}

// Matches reports whether the document passes the category and free-text
// filters. Search is case-insensitive against the title and every tag; a
// blank search matches everything. Stores and views share this definition.
func (d *Document) Matches(category Category, search string) bool {
	if category != "" && d.Category != category {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(d.Title), term) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// CreateInput carries the fields accepted by Create.
type CreateInput struct {
	ClinicID             string   `json:"clinic_id"`
	CreatedBy            string   `json:"created_by"`
	Title                string   `json:"title"`
	Content              string   `json:"content"`
	Category             Category `json:"category,omitempty"`
	IsTemplate           *bool    `json:"is_template,omitempty"`
	IsSharedWithPatients *bool    `json:"is_shared_with_patients,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
}

// Patch is a partial update. Nil fields are left unchanged. A non-nil
// Category pointing at "" clears the category.
type Patch struct {
	Title                *string   `json:"title,omitempty"`
	Content              *string   `json:"content,omitempty"`
	Category             *Category `json:"category,omitempty"`
	IsTemplate           *bool     `json:"is_template,omitempty"`
	IsSharedWithPatients *bool     `json:"is_shared_with_patients,omitempty"`
	Tags                 *[]string `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Category == nil &&
		p.IsTemplate == nil && p.IsSharedWithPatients == nil && p.Tags == nil
}

// Apply writes the patch onto d. Version and timestamps are left to the store.
func (p Patch) Apply(d *Document) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.IsTemplate != nil {
		d.IsTemplate = *p.IsTemplate
	}
	if p.IsSharedWithPatients != nil {
		d.IsSharedWithPatients = *p.IsSharedWithPatients
	}
	if p.Tags != nil {
		d.Tags = append([]string{}, (*p.Tags)...)
	}
}

// ListRoute is the dashboard route whose cached rendering is invalidated by
// every document mutation.
const ListRoute = "/dashboard/doctor/documents"

// Invalidation is emitted after a successful mutation so readers of the
// clinic's document list re-fetch.
type Invalidation struct {
	Route      string    `json:"route"`
	ClinicID   string    `json:"clinicId"`
	DocumentID string    `json:"documentId,omitempty"`
	Op         string    `json:"op"`
	At         time.Time `json:"at"`
}
