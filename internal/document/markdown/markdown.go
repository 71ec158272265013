// Package markdown renders the small markdown subset used in clinic
// document content: #/##/### headings, **bold**, *italic*, "- " and "1. "
// list items, and blank-line paragraph breaks.
package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe  = regexp.MustCompile(`\*(.+?)\*`)
	orderedRe = regexp.MustCompile(`^\d+\. (.*)$`)
)

// Renderer converts content to sanitized HTML. Safe for concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{policy: bluemonday.UGCPolicy()}
}

// Render returns sanitized HTML for content.
func (r *Renderer) Render(content string) string {
	return r.policy.Sanitize(toHTML(content))
}

func inline(s string) string {
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	return italicRe.ReplaceAllString(s, "<em>$1</em>")
}

type listKind int

const (
	noList listKind = iota
	bulletList
	orderedList
)

// toHTML escapes content and then applies the markup subset, so any HTML in
// the source is shown as text.
func toHTML(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var b strings.Builder
	var para []string
	list := noList

	flushPara := func() {
		if len(para) > 0 {
			b.WriteString("<p>" + strings.Join(para, "<br>") + "</p>\n")
			para = nil
		}
	}
	closeList := func() {
		switch list {
		case bulletList:
			b.WriteString("</ul>\n")
		case orderedList:
			b.WriteString("</ol>\n")
		}
		list = noList
	}
	openList := func(k listKind) {
		if list == k {
			return
		}
		closeList()
		flushPara()
		if k == bulletList {
			b.WriteString("<ul>\n")
		} else {
			b.WriteString("<ol>\n")
		}
		list = k
	}

	for _, raw := range strings.Split(content, "\n") {
		line := html.EscapeString(strings.TrimRight(raw, " \t"))
		switch {
		case strings.TrimSpace(line) == "":
			flushPara()
			closeList()
		case strings.HasPrefix(line, "### "):
			flushPara()
			closeList()
			b.WriteString("<h3>" + inline(line[4:]) + "</h3>\n")
		case strings.HasPrefix(line, "## "):
			flushPara()
			closeList()
			b.WriteString("<h2>" + inline(line[3:]) + "</h2>\n")
		case strings.HasPrefix(line, "# "):
			flushPara()
			closeList()
			b.WriteString("<h1>" + inline(line[2:]) + "</h1>\n")
		case strings.HasPrefix(line, "- "):
			openList(bulletList)
			b.WriteString("<li>" + inline(line[2:]) + "</li>\n")
		case orderedRe.MatchString(line):
			openList(orderedList)
			b.WriteString("<li>" + inline(orderedRe.FindStringSubmatch(line)[1]) + "</li>\n")
		default:
			closeList()
			para = append(para, inline(line))
		}
	}
	flushPara()
	closeList()
	return b.String()
}
