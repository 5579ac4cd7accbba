package audit

import (
	"context"
	"fmt"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// RepositoryPort defines the read access the timeline needs.
type RepositoryPort interface {
	List(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo RepositoryPort
}

// NewService returns a new timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of audit entries. It reads one row beyond the
// page to learn whether a next page exists without a count query.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	entries, err := s.repo.List(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	return Result{
		Entries: entries,
		Paging:  PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}
