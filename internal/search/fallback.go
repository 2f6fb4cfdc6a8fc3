package search

import (
	"strings"
	"unicode/utf8"

	"docshub/api/internal/document"
	"docshub/api/internal/store"
)

const snippetRadius = 60

// Filter scans one project's documents in memory: a case-insensitive
// substring match over title, category and content. It answers when the
// index is unavailable.
func Filter(project store.Project, q Query) ([]Result, int) {
	term := strings.TrimSpace(q.Text)
	matches := make([]Result, 0)
	for _, record := range RecordsForProject(project) {
		if !document.ContainsFold(record.Title, term) &&
			!document.ContainsFold(record.Category, term) &&
			!document.ContainsFold(record.Content, term) {
			continue
		}
		matches = append(matches, Result{
			ProjectID:  record.ProjectID,
			DocumentID: record.DocumentID,
			Title:      record.Title,
			Category:   record.Category,
			Snippet:    snippet(record.Content, term),
		})
	}
	return page(matches, q.Offset, q.Limit), len(matches)
}

func page(results []Result, offset, limit int) []Result {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

// snippet returns the text around the first occurrence of term, or the
// opening of text when term does not occur in it.
func snippet(text, term string) string {
	text = strings.Join(strings.Fields(text), " ")
	start, matched := 0, 0
	if at, atEnd := document.IndexFold(text, term); at >= 0 {
		matched = atEnd - at
		if at > snippetRadius {
			start = at - snippetRadius
		}
	}
	end := min(start+2*snippetRadius+matched, len(text))
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}
