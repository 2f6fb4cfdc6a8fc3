package search

import (
	"crypto/sha1"
	"encoding/hex"

	"docshub/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ProjectID  string `json:"projectId"`
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Snippet    string `json:"snippet"`
}

// Query describes a search request. Searches never cross owners or projects.
type Query struct {
	OwnerID   string
	ProjectID string
	Text      string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for one document of one project.
type DocumentRecord struct {
	ID         string `json:"id"`
	OwnerID    string `json:"ownerId"`
	ProjectID  string `json:"projectId"`
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Content    string `json:"content"`
}

// RecordID derives the index key. Document ids may hold characters the index
// rejects, so the pair is hashed.
func RecordID(projectID, documentID string) string {
	sum := sha1.Sum([]byte(projectID + "/" + documentID))
	return hex.EncodeToString(sum[:])
}

// RecordsForProject flattens a project into one record per listed document.
func RecordsForProject(project store.Project) []DocumentRecord {
	records := make([]DocumentRecord, 0, len(project.Documents))
	for _, meta := range project.Documents {
		content, _ := project.DocumentContent.Get(meta.ID)
		records = append(records, DocumentRecord{
			ID:         RecordID(project.ID, meta.ID),
			OwnerID:    project.OwnerID,
			ProjectID:  project.ID,
			DocumentID: meta.ID,
			Title:      meta.Title,
			Category:   string(meta.Category),
			Content:    content.Content,
		})
	}
	return records
}
