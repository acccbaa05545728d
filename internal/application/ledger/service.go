package ledger

import (
	"context"

	domain "github.com/aet-hub/aet-hub/internal/domain/ledger"
)

// Service exposes read access to the ledger.
type Service struct {
	repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.Entry, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) ListByRequest(ctx context.Context, requestID int64) ([]*domain.Entry, error) {
	return s.repo.ListByRequest(ctx, requestID)
}
