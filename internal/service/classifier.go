package service

import (
	"context"
	"fmt"

	"rdmquota/internal/cache"
	"rdmquota/internal/domain"
)

// ClassifierService determines whether a project's files are accounted under
// the default (NII) counters or the per-region institutional counters.
type ClassifierService struct {
	projects ProjectStore
	cache    *cache.StorageTypeCache
}

func NewClassifierService(projects ProjectStore, storageTypeCache *cache.StorageTypeCache) *ClassifierService {
	return &ClassifierService{
		projects: projects,
		cache:    storageTypeCache,
	}
}

// Classify looks up the project's classification row. Registrations and forks
// may lack the row; in that case the forked-from project's classification
// applies, and when that too is absent the project is treated as custom
// storage.
func (s *ClassifierService) Classify(ctx context.Context, project *domain.Project) (domain.StorageType, error) {
	if storageType, ok := s.cache.Get(ctx, project.ID); ok {
		return storageType, nil
	}

	storageType, found, err := s.projects.GetStorageType(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to classify project: %w", err)
	}

	if !found && project.ForkedFromID != nil {
		storageType, found, err = s.projects.GetStorageType(ctx, *project.ForkedFromID)
		if err != nil {
			return 0, fmt.Errorf("failed to classify forked-from project: %w", err)
		}
	}
	if !found {
		storageType = domain.StorageTypeCustom
	}

	s.cache.Set(ctx, project.ID, storageType)
	return storageType, nil
}
