// Package handout publishes patient-shared documents as standalone HTML pages
// in object storage and hands out time-limited links to them.
package handout

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/markdown"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/storage"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
)

const MsgNotShared = "Document is not shared with patients"

// Handout describes a published copy.
type Handout struct {
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Publisher struct {
	store    storage.ObjectStore
	renderer *markdown.Renderer
	ttl      time.Duration
	now      func() time.Time
}

func NewPublisher(store storage.ObjectStore, renderer *markdown.Renderer, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Publisher{store: store, renderer: renderer, ttl: ttl, now: time.Now}
}

// Key is the object key of a document version.
func Key(d *document.Document) string {
	return fmt.Sprintf("clinics/%s/documents/%s/v%d.html", d.ClinicID, d.ID, d.Version)
}

// Page renders d as a complete HTML page.
func (p *Publisher) Page(d *document.Document) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	b.WriteString("<title>" + html.EscapeString(d.Title) + "</title></head>\n<body>\n")
	b.WriteString("<h1>" + html.EscapeString(d.Title) + "</h1>\n")
	b.WriteString(p.renderer.Render(d.Content))
	b.WriteString("</body></html>\n")
	return []byte(b.String())
}

// Publish uploads the rendered document and returns a presigned link. Only
// documents shared with patients can be published.
func (p *Publisher) Publish(ctx context.Context, d *document.Document) (*Handout, error) {
	if !d.IsSharedWithPatients {
		return nil, &document.ValidationError{Message: MsgNotShared}
	}
	key := Key(d)
	if err := p.store.Put(ctx, key, p.Page(d), "text/html; charset=utf-8"); err != nil {
		return nil, &document.StoreError{Message: "Failed to publish handout", Err: err}
	}
	url, err := p.store.PresignedURL(ctx, key, p.ttl)
	if err != nil {
		return nil, &document.StoreError{Message: "Failed to sign handout link", Err: err}
	}
	logger.L().Info().Str("document_id", d.ID).Int("version", d.Version).Str("key", key).Msg("handout published")
	return &Handout{
		DocumentID: d.ID,
		Version:    d.Version,
		Key:        key,
		URL:        url,
		ExpiresAt:  p.now().UTC().Add(p.ttl),
	}, nil
}
