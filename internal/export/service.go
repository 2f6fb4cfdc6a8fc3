package export

import (
	"context"
	"fmt"
	"time"

	"docshub/api/internal/store"
)

// Service provides project export functionality
type Service struct {
	publisher Publisher
	now       func() time.Time
}

// NewService creates a new export service. publisher may be nil when object
// storage is not configured.
func NewService(publisher Publisher) *Service {
	return &Service{publisher: publisher, now: time.Now}
}

func (s *Service) CanPublish() bool {
	return s.publisher != nil
}

func (s *Service) Document(project store.Project, documentID string) (*Result, error) {
	return DocumentMarkdown(project, documentID)
}

func (s *Service) Archive(project store.Project) (*Result, error) {
	return Archive(project, s.now())
}

// Publish uploads the project archive under a per-project, per-moment key
// and returns its presigned link.
func (s *Service) Publish(ctx context.Context, project store.Project) (string, error) {
	if s.publisher == nil {
		return "", ErrPublisherUnavailable
	}
	archive, err := s.Archive(project)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s/%d-%s", project.OwnerID, project.ID, s.now().UnixMilli(), archive.Filename)
	return s.publisher.Publish(ctx, key, archive)
}
