package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxDocuments = "docshub_documents"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. A failed
// first health check leaves it unhealthy; the health loop keeps probing.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger.With().Str("component", "search").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDocuments,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug().Err(err).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxDocuments)
	filterable := []interface{}{"ownerId", "projectId", "category"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn().Err(err).Msg("update filterable attributes")
	}
	searchable := []string{"title", "category", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn().Err(err).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	request := &meili.SearchRequest{
		IndexUID:              idxDocuments,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title", "content"},
		AttributesToCrop:      []string{"content"},
		CropLength:            30,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		Filter: []string{
			fmt.Sprintf("ownerId = %q", q.OwnerID),
			fmt.Sprintf("projectId = %q", q.ProjectID),
		},
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{request},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0)
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ProjectID:  decodeString(hit, "projectId"),
		DocumentID: decodeString(hit, "documentId"),
		Title:      firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Category:   decodeString(hit, "category"),
		Snippet:    firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(formatted[key], &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexDocuments adds or updates records in the search index.
func (m *Meili) IndexDocuments(records []DocumentRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDocuments).AddDocuments(records, nil)
	return err
}

// DeleteDocument removes one record from the search index.
func (m *Meili) DeleteDocument(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}
