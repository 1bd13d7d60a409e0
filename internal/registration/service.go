package registration

import (
	"context"
	"fmt"
	"mime/multipart"

	"go.uber.org/zap"
)

// Repository persists registrations. Implementations assign ID and
// CreatedAt on Insert and list newest first.
type Repository interface {
	Insert(ctx context.Context, r Registration) (Registration, error)
	ListAll(ctx context.Context) ([]Registration, error)
}

// PhotoStore stores uploaded photos and returns their reference.
type PhotoStore interface {
	Save(fh *multipart.FileHeader) (string, error)
	Remove(ref string) error
}

// Service coordinates validation, photo ingest and persistence.
type Service struct {
	repo   Repository
	photos PhotoStore
	log    *zap.Logger
}

// NewService creates a service backed by a repository and photo store.
func NewService(repo Repository, photos PhotoStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, photos: photos, log: log}
}

// Register validates sub, stores the photo and inserts the record. Nothing
// is persisted unless every step succeeds; a photo written before a failed
// insert is removed again.
func (s *Service) Register(ctx context.Context, sub Submission, fh *multipart.FileHeader) (Registration, error) {
	sub.HasPhoto = fh != nil
	if err := sub.Validate(); err != nil {
		return Registration{}, err
	}

	ref, err := s.photos.Save(fh)
	if err != nil {
		return Registration{}, fmt.Errorf("store photo: %w", err)
	}

	rec, err := sub.Record(ref)
	if err != nil {
		s.discard(ref)
		return Registration{}, err
	}

	saved, err := s.repo.Insert(ctx, rec)
	if err != nil {
		s.discard(ref)
		return Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	return saved, nil
}

// List returns every registration newest first, narrowed by q.
func (s *Service) List(ctx context.Context, q Query) ([]Registration, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if q == (Query{}) {
		if all == nil {
			all = []Registration{}
		}
		return all, nil
	}
	return Filter(all, q), nil
}

func (s *Service) discard(ref string) {
	if err := s.photos.Remove(ref); err != nil {
		s.log.Warn("remove orphaned photo", zap.String("photo", ref), zap.Error(err))
	}
}
