package search

import (
	"github.com/rs/zerolog"

	"docshub/api/internal/store"
	"docshub/api/internal/util"
)

// index is the part of Meili the facade drives; tests substitute it.
type index interface {
	Searcher
	IndexDocuments(records []DocumentRecord) error
	DeleteDocument(id string) error
}

// Service is the facade that tries Meilisearch first and falls back to an
// in-memory scan of the project.
type Service struct {
	index  index
	logger zerolog.Logger
	// run executes index writes, in order per project; tests make it
	// synchronous.
	run     func(key string, fn func())
	pending util.KeyedQueue
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, logger zerolog.Logger) *Service {
	s := &Service{logger: logger}
	s.run = s.pending.Go
	if meili != nil {
		s.index = meili
	}
	return s
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise scans project directly.
func (s *Service) Search(project store.Project, q Query) Response {
	q.OwnerID = project.OwnerID
	q.ProjectID = project.ID
	if s.indexReady() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn().Err(err).Msg("search index error, falling back to scan")
	}
	results, total := Filter(project, q)
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes every document of project and drops records for
// documents listed in previous but no longer in project (fire-and-forget).
func (s *Service) IndexProject(previous, project store.Project) {
	if !s.indexReady() {
		return
	}
	records := RecordsForProject(project)
	stale := staleRecordIDs(previous, project)
	s.run(project.ID, func() {
		if err := s.index.IndexDocuments(records); err != nil {
			s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("index project")
		}
		for _, id := range stale {
			if err := s.index.DeleteDocument(id); err != nil {
				s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("delete stale record")
			}
		}
	})
}

// RemoveProject drops every record of project from the index (fire-and-forget).
func (s *Service) RemoveProject(project store.Project) {
	if !s.indexReady() {
		return
	}
	records := RecordsForProject(project)
	s.run(project.ID, func() {
		for _, record := range records {
			if err := s.index.DeleteDocument(record.ID); err != nil {
				s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("delete record")
			}
		}
	})
}

// ReindexAll pushes every given project into the index.
func (s *Service) ReindexAll(projects []store.Project) {
	if !s.indexReady() {
		return
	}
	records := make([]DocumentRecord, 0)
	for _, project := range projects {
		records = append(records, RecordsForProject(project)...)
	}
	if err := s.index.IndexDocuments(records); err != nil {
		s.logger.Warn().Err(err).Msg("reindex projects")
	}
}

func staleRecordIDs(previous, current store.Project) []string {
	kept := make(map[string]bool, len(current.Documents))
	for _, meta := range current.Documents {
		kept[meta.ID] = true
	}
	stale := make([]string, 0)
	for _, meta := range previous.Documents {
		if !kept[meta.ID] {
			stale = append(stale, RecordID(previous.ID, meta.ID))
		}
	}
	return stale
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
