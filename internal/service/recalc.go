package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"rdmquota/internal/domain"
)

// RecalcService repairs counter drift by recomputing used bytes from the file
// table. Recalculation writes back only where a counter row already exists;
// rows are minted by the event-driven path, never by reconciliation. The one
// exception is UpdateUserUsedQuota, which initializes the coarse per-user
// counter.
type RecalcService struct {
	projects    ProjectStore
	nodes       FileNodeStore
	regions     RegionStore
	quotas      QuotaStore
	niiRegionID int64
	log         zerolog.Logger
}

func NewRecalcService(
	projects ProjectStore,
	nodes FileNodeStore,
	regions RegionStore,
	quotas QuotaStore,
	niiRegionID int64,
	log zerolog.Logger,
) *RecalcService {
	return &RecalcService{
		projects:    projects,
		nodes:       nodes,
		regions:     regions,
		quotas:      quotas,
		niiRegionID: niiRegionID,
		log:         log,
	}
}

// UsedQuota sums the recorded sizes of all live files in the user's projects
// under the given classification. Default storage counts bulk-mount files
// only; custom storage counts every tracked provider.
func (s *RecalcService) UsedQuota(ctx context.Context, userGUID string, storageType domain.StorageType) (int64, error) {
	user, err := s.projects.GetUserByGUID(ctx, userGUID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, fmt.Errorf("user %s not found", userGUID)
	}

	projects, err := s.projects.ListOwnedByStorageType(ctx, user.ID, storageType)
	if err != nil {
		return 0, err
	}

	projectIDs := lo.Map(projects, func(p domain.Project, _ int) int64 { return p.ID })
	return s.nodes.SumFileSizesForProjects(ctx, projectIDs, storageType == domain.StorageTypeDefault)
}

// UpdateUserUsedQuota recomputes and writes the coarse per-user counter,
// creating the row with the default ceiling when absent.
func (s *RecalcService) UpdateUserUsedQuota(ctx context.Context, user *domain.User, storageType domain.StorageType) error {
	used, err := s.UsedQuota(ctx, user.GUID, storageType)
	if err != nil {
		return err
	}
	return s.quotas.UpsertUserQuotaUsed(ctx, user.ID, storageType, used)
}

// RecalculateUsedOfUserByRegion recomputes one (user, region) counter from
// scratch and writes it back if the row exists. The fresh sum is returned
// either way, so absent-row readers report a live value instead of zero.
func (s *RecalcService) RecalculateUsedOfUserByRegion(ctx context.Context, userID, regionID int64) (int64, error) {
	storageType := domain.StorageTypeCustom
	if regionID == s.niiRegionID {
		storageType = domain.StorageTypeDefault
	}

	region, err := s.regions.GetByID(ctx, regionID)
	if err != nil {
		return 0, err
	}
	if region == nil {
		return 0, fmt.Errorf("region %d not found", regionID)
	}

	projects, err := s.projects.ListOwnedByStorageType(ctx, userID, storageType)
	if err != nil {
		return 0, err
	}

	var used int64
	for i := range projects {
		project := &projects[i]
		sum, err := s.usedByProjectRegion(ctx, project, region)
		if err != nil {
			return 0, err
		}
		used += sum
	}

	updated, err := s.quotas.SetUsedIfExists(ctx, userID, regionID, used)
	if err != nil {
		return 0, err
	}
	if !updated {
		s.log.Debug().
			Int64("user_id", userID).
			Int64("region_id", regionID).
			Msg("no counter row to write recalculated usage to")
	}

	return used, nil
}

// RecalculateByUserGUID is RecalculateUsedOfUserByRegion keyed by user guid,
// for HTTP callers.
func (s *RecalcService) RecalculateByUserGUID(ctx context.Context, userGUID string, regionID int64) (int64, error) {
	user, err := s.projects.GetUserByGUID(ctx, userGUID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, fmt.Errorf("user %s not found", userGUID)
	}
	return s.RecalculateUsedOfUserByRegion(ctx, user.ID, regionID)
}

// RecalculateUsedQuotaByUser recomputes every region counter the user has
// projects on.
func (s *RecalcService) RecalculateUsedQuotaByUser(ctx context.Context, userID int64) error {
	projects, err := s.projects.ListOwnedByStorageType(ctx, userID, domain.StorageTypeCustom)
	if err != nil {
		return err
	}

	usedByRegion := map[int64]int64{}
	for i := range projects {
		project := &projects[i]
		if project.RegionID == nil {
			continue
		}
		region, err := s.regions.GetByID(ctx, *project.RegionID)
		if err != nil {
			return err
		}
		if region == nil {
			continue
		}
		sum, err := s.usedByProjectRegion(ctx, project, region)
		if err != nil {
			return err
		}
		usedByRegion[region.ID] += sum
	}

	for regionID, used := range usedByRegion {
		if _, err := s.quotas.SetUsedIfExists(ctx, userID, regionID, used); err != nil {
			return err
		}
	}
	return nil
}

// RecalculateAll walks every existing counter row. Runs on the periodic
// drift-correction schedule.
func (s *RecalcService) RecalculateAll(ctx context.Context) error {
	quotas, err := s.quotas.ListUserStorageQuotas(ctx)
	if err != nil {
		return err
	}

	for i := range quotas {
		quota := &quotas[i]
		if _, err := s.RecalculateUsedOfUserByRegion(ctx, quota.UserID, quota.RegionID); err != nil {
			s.log.Error().Err(err).
				Int64("user_id", quota.UserID).
				Int64("region_id", quota.RegionID).
				Msg("failed to recalculate used quota")
		}
	}
	return nil
}

// usedByProjectRegion sums one project's live file sizes on a region,
// respecting the two addressing schemes: addon-method regions list files by
// provider, bulk-mount regions walk descendants from the storage root.
func (s *RecalcService) usedByProjectRegion(ctx context.Context, project *domain.Project, region *domain.Region) (int64, error) {
	if region.ProviderClass() == domain.AddonMethod {
		return s.nodes.SumFileSizesByProvider(ctx, project.ID, region.Provider)
	}

	// Projects without an assigned region mount the NII default storage.
	if project.RegionID != nil && *project.RegionID != region.ID {
		return 0, nil
	}
	if project.RegionID == nil && region.ID != s.niiRegionID {
		return 0, nil
	}
	root, err := s.nodes.GetStorageRoot(ctx, project.ID, region.Provider)
	if err != nil {
		return 0, err
	}
	if root == nil {
		return 0, nil
	}
	return s.nodes.SumFileSizesUnderRoot(ctx, project.ID, root.ID)
}
