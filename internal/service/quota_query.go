package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rdmquota/internal/domain"
)

// ErrMissingParameter marks client input errors on the read-side API; the
// HTTP layer maps it to 400.
var ErrMissingParameter = errors.New("missing required parameter")

// ErrNotFound marks lookups of unknown projects, users, or regions.
var ErrNotFound = errors.New("not found")

// QueryService is the read side: {max, used} pairs for HTTP callers. Reads
// never create counter rows; when a row is absent the default ceiling is
// reported together with a freshly recalculated used value.
type QueryService struct {
	projects   ProjectStore
	classifier *ClassifierService
	catalog    *CatalogService
	quotas     QuotaStore
	recalc     *RecalcService
	log        zerolog.Logger
}

func NewQueryService(
	projects ProjectStore,
	classifier *ClassifierService,
	catalog *CatalogService,
	quotas QuotaStore,
	recalc *RecalcService,
	log zerolog.Logger,
) *QueryService {
	return &QueryService{
		projects:   projects,
		classifier: classifier,
		catalog:    catalog,
		quotas:     quotas,
		recalc:     recalc,
		log:        log,
	}
}

// GetQuotaInfo reports the coarse per-user quota applying to a project.
func (s *QueryService) GetQuotaInfo(ctx context.Context, projectGUID string) (*domain.QuotaInfo, error) {
	project, creator, err := s.projectAndCreator(ctx, projectGUID)
	if err != nil {
		return nil, err
	}

	storageType, err := s.classifier.Classify(ctx, project)
	if err != nil {
		return nil, err
	}

	quota, err := s.quotas.GetUserQuota(ctx, creator.ID, storageType)
	if err != nil {
		return nil, err
	}
	if quota != nil {
		return &domain.QuotaInfo{Max: quota.MaxQuota * domain.SizeUnit, Used: quota.Used}, nil
	}

	used, err := s.recalc.UsedQuota(ctx, creator.GUID, storageType)
	if err != nil {
		return nil, err
	}
	return &domain.QuotaInfo{Max: domain.DefaultMaxQuota * domain.SizeUnit, Used: used}, nil
}

// GetInstitutionStorageQuotaInfo reports the per-(user, region) quota for a
// project's institutional storage. Missing provider or path is a client
// error.
func (s *QueryService) GetInstitutionStorageQuotaInfo(ctx context.Context, projectGUID, provider, path string) (*domain.QuotaInfo, error) {
	if provider == "" || path == "" {
		return nil, fmt.Errorf("%w: provider and path are required", ErrMissingParameter)
	}

	project, creator, err := s.projectAndCreator(ctx, projectGUID)
	if err != nil {
		return nil, err
	}

	region, err := s.resolveRegion(ctx, project, creator, provider)
	if err != nil {
		return nil, err
	}
	if region == nil {
		// Quota is not trackable here; report the default ceiling.
		s.log.Debug().Str("project", projectGUID).Str("provider", provider).
			Msg("no region for institutional storage quota lookup")
		return &domain.QuotaInfo{Max: domain.DefaultMaxQuota * domain.SizeUnit, Used: 0}, nil
	}

	quota, err := s.quotas.GetUserStorageQuota(ctx, creator.ID, region.ID)
	if err != nil {
		return nil, err
	}
	if quota != nil {
		return &domain.QuotaInfo{Max: quota.MaxQuota * domain.SizeUnit, Used: quota.Used}, nil
	}

	used, err := s.recalc.RecalculateUsedOfUserByRegion(ctx, creator.ID, region.ID)
	if err != nil {
		return nil, err
	}
	return &domain.QuotaInfo{Max: domain.DefaultMaxQuota * domain.SizeUnit, Used: used}, nil
}

// SetInstitutionalStorageMaxQuota is the administrative ceiling update. The
// user's aggregate custom ceiling moves by the same delta.
func (s *QueryService) SetInstitutionalStorageMaxQuota(ctx context.Context, userGUID string, regionID, maxQuota int64) error {
	if maxQuota < 0 {
		return fmt.Errorf("%w: max quota cannot be negative", ErrMissingParameter)
	}

	user, err := s.projects.GetUserByGUID(ctx, userGUID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %s", ErrNotFound, userGUID)
	}

	region, err := s.catalog.GetRegion(ctx, regionID)
	if err != nil {
		return err
	}
	if region == nil {
		return fmt.Errorf("%w: region %d", ErrNotFound, regionID)
	}

	return s.quotas.SetMaxQuota(ctx, user.ID, regionID, maxQuota)
}

func (s *QueryService) projectAndCreator(ctx context.Context, projectGUID string) (*domain.Project, *domain.User, error) {
	project, err := s.projects.GetByGUID(ctx, projectGUID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, fmt.Errorf("%w: project %s", ErrNotFound, projectGUID)
	}

	creator, err := s.projects.GetUserByID(ctx, project.CreatorID)
	if err != nil {
		return nil, nil, err
	}
	if creator == nil {
		return nil, nil, fmt.Errorf("%w: user %d", ErrNotFound, project.CreatorID)
	}

	return project, creator, nil
}

func (s *QueryService) resolveRegion(ctx context.Context, project *domain.Project, creator *domain.User, provider string) (*domain.Region, error) {
	if domain.ClassifyProvider(provider) == domain.BulkMount {
		if project.RegionID == nil {
			return nil, nil
		}
		return s.catalog.GetRegion(ctx, *project.RegionID)
	}

	if creator.InstitutionID == nil {
		return nil, nil
	}
	return s.catalog.FindRegion(ctx, *creator.InstitutionID, provider)
}
