package service

import (
	"context"
	"fmt"

	"rdmquota/internal/domain"
)

// CatalogService is the storage catalog: pure lookup over administrator-
// configured regions. A nil region means "quota not trackable here" and is
// not an error.
type CatalogService struct {
	regions RegionStore
}

func NewCatalogService(regions RegionStore) *CatalogService {
	return &CatalogService{regions: regions}
}

func (s *CatalogService) FindRegion(ctx context.Context, institutionID int64, provider string) (*domain.Region, error) {
	region, err := s.regions.FindByInstitutionAndProvider(ctx, institutionID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to find region: %w", err)
	}
	return region, nil
}

func (s *CatalogService) GetRegion(ctx context.Context, id int64) (*domain.Region, error) {
	region, err := s.regions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get region: %w", err)
	}
	return region, nil
}
