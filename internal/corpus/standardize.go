package corpus

import (
	"fmt"
	"strings"
)

// fieldAliases maps each Document field to the raw JSON keys recognized for
// it, in priority order. Source pages come from more than one scraper run and
// key names drifted between them; the mapping is an explicit table rather
// than runtime attribute probing.
var fieldAliases = map[string][]string{
	"url":         {"url", "page_url", "link"},
	"title":       {"title", "page_title", "name"},
	"description": {"description", "meta_description", "summary"},
	"content":     {"content", "text", "body"},
	"scraped_at":  {"scraped_at", "retrieved_at", "timestamp"},
	"source_file": {"source_file", "source", "file"},
}

// SkipError reports why a raw record was rejected during standardization.
// Records that fail standardization are counted and skipped, not fatal.
type SkipError struct {
	SourceFile string
	Reason     string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped %s: %s", e.SourceFile, e.Reason)
}

// Standardize converts one raw scraped record into a typed Document. The
// record must resolve a url and non-trivial content through the alias table.
func Standardize(raw map[string]any, sourceFile string) (Document, error) {
	doc := Document{
		URL:         lookupAlias(raw, "url"),
		Title:       lookupAlias(raw, "title"),
		Description: lookupAlias(raw, "description"),
		Content:     lookupAlias(raw, "content"),
		ScrapedAt:   lookupAlias(raw, "scraped_at"),
		SourceFile:  sourceFile,
	}

	if sf := lookupAlias(raw, "source_file"); sf != "" {
		doc.SourceFile = sf
	}

	if doc.URL == "" {
		return Document{}, &SkipError{SourceFile: sourceFile, Reason: "no recognized url field"}
	}
	if strings.TrimSpace(doc.Content) == "" {
		return Document{}, &SkipError{SourceFile: sourceFile, Reason: "no recognized content field"}
	}

	if doc.Title == "" {
		doc.Title = titleFromURL(doc.URL)
	}
	doc.ContentLength = len(doc.Content)

	return doc, nil
}

func lookupAlias(raw map[string]any, field string) string {
	for _, key := range fieldAliases[field] {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// titleFromURL derives a readable title from the page path when the scraper
// captured none.
func titleFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "City Services"
	}

	last := parts[len(parts)-1]
	words := strings.FieldsFunc(last, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	if len(words) == 0 {
		return "City Services"
	}
	return strings.Join(words, " ")
}
