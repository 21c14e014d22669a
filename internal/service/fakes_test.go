package service

import (
	"context"
	"strings"
	"time"

	"rdmquota/internal/domain"
)

// In-memory stores mirroring the repository semantics, including zero-clamping
// and lazy row creation, so the accounting flows can be exercised end to end.

type fakeRegionStore struct {
	regions []domain.Region
}

func (f *fakeRegionStore) GetByID(_ context.Context, id int64) (*domain.Region, error) {
	for i := range f.regions {
		if f.regions[i].ID == id {
			region := f.regions[i]
			return &region, nil
		}
	}
	return nil, nil
}

func (f *fakeRegionStore) FindByInstitutionAndProvider(_ context.Context, institutionID int64, provider string) (*domain.Region, error) {
	var match *domain.Region
	for i := range f.regions {
		region := f.regions[i]
		if region.InstitutionID != institutionID || region.Provider != provider {
			continue
		}
		if region.IsDefault {
			return &region, nil
		}
		if match == nil {
			match = &region
		}
	}
	return match, nil
}

type fakeProjectStore struct {
	projects     []domain.Project
	users        []domain.User
	storageTypes map[int64]domain.StorageType

	storageTypeCalls int
}

func (f *fakeProjectStore) GetByGUID(_ context.Context, guid string) (*domain.Project, error) {
	for i := range f.projects {
		if f.projects[i].GUID == guid {
			project := f.projects[i]
			return &project, nil
		}
	}
	return nil, nil
}

func (f *fakeProjectStore) GetStorageType(_ context.Context, projectID int64) (domain.StorageType, bool, error) {
	f.storageTypeCalls++
	storageType, ok := f.storageTypes[projectID]
	return storageType, ok, nil
}

func (f *fakeProjectStore) ListOwnedByStorageType(_ context.Context, creatorID int64, storageType domain.StorageType) ([]domain.Project, error) {
	var owned []domain.Project
	for i := range f.projects {
		project := f.projects[i]
		if project.CreatorID != creatorID || project.IsDeleted {
			continue
		}
		if recorded, ok := f.storageTypes[project.ID]; ok && recorded == storageType {
			owned = append(owned, project)
		}
	}
	return owned, nil
}

func (f *fakeProjectStore) GetUserByGUID(_ context.Context, guid string) (*domain.User, error) {
	for i := range f.users {
		if f.users[i].GUID == guid {
			user := f.users[i]
			return &user, nil
		}
	}
	return nil, nil
}

func (f *fakeProjectStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			user := f.users[i]
			return &user, nil
		}
	}
	return nil, nil
}

type fakeFileNodeStore struct {
	nodes     []*domain.FileNode
	fileSizes map[int64]int64
}

func (f *fakeFileNodeStore) GetByExternalID(_ context.Context, projectID int64, externalID string) (*domain.FileNode, error) {
	for _, node := range f.nodes {
		if node.ProjectID == projectID && node.ExternalID == externalID {
			return node, nil
		}
	}
	return nil, nil
}

func (f *fakeFileNodeStore) FindRootByExternalID(_ context.Context, externalID string) (*domain.FileNode, error) {
	for _, node := range f.nodes {
		if node.ExternalID == externalID && node.ParentID == nil {
			return node, nil
		}
	}
	return nil, nil
}

func (f *fakeFileNodeStore) GetStorageRoot(_ context.Context, projectID int64, provider string) (*domain.FileNode, error) {
	for _, node := range f.nodes {
		if node.ProjectID == projectID && node.Provider == provider &&
			node.ParentID == nil && node.IsFolder() {
			return node, nil
		}
	}
	return nil, nil
}

func (f *fakeFileNodeStore) FindByCompositePath(_ context.Context, projectID int64, provider, path, name string) (*domain.FileNode, error) {
	for _, node := range f.nodes {
		if node.ProjectID == projectID && node.Provider == provider &&
			node.Path == path && node.Name == name {
			return node, nil
		}
	}
	return nil, nil
}

func (f *fakeFileNodeStore) FindByMaterializedPath(_ context.Context, projectID int64, provider, materialized, name string) (*domain.FileNode, error) {
	for _, node := range f.nodes {
		if node.ProjectID == projectID && node.Provider == provider &&
			node.MaterializedPath == materialized && node.Name == name {
			return node, nil
		}
	}
	return nil, nil
}

func (f *fakeFileNodeStore) ListChildren(_ context.Context, parentIDs []int64) ([]domain.FileNode, error) {
	parents := map[int64]bool{}
	for _, id := range parentIDs {
		parents[id] = true
	}
	var children []domain.FileNode
	for _, node := range f.nodes {
		if node.ParentID != nil && parents[*node.ParentID] {
			children = append(children, *node)
		}
	}
	return children, nil
}

func (f *fakeFileNodeStore) ListLiveByMaterializedPrefix(_ context.Context, projectID int64, provider, prefix string, rootID int64) ([]domain.FileNode, error) {
	var matched []domain.FileNode
	for _, node := range f.nodes {
		if node.ProjectID != projectID || node.Provider != provider || node.IsTrashed() {
			continue
		}
		if node.ParentID == nil || *node.ParentID != rootID {
			continue
		}
		if strings.HasPrefix(node.MaterializedPath, prefix) {
			matched = append(matched, *node)
		}
	}
	return matched, nil
}

func (f *fakeFileNodeStore) MarkTrashed(_ context.Context, nodeID, userID int64) error {
	for _, node := range f.nodes {
		if node.ID == nodeID {
			now := time.Now()
			node.DeletedOn = &now
			node.DeletedByID = &userID
		}
	}
	return nil
}

func (f *fakeFileNodeStore) SumFileSizesUnderRoot(ctx context.Context, projectID, rootID int64) (int64, error) {
	var sum int64
	folderIDs := []int64{rootID}
	for len(folderIDs) > 0 {
		children, _ := f.ListChildren(ctx, folderIDs)
		folderIDs = folderIDs[:0]
		for i := range children {
			child := children[i]
			if child.ProjectID != projectID || child.IsTrashed() {
				continue
			}
			if child.IsFolder() {
				folderIDs = append(folderIDs, child.ID)
			} else {
				sum += f.fileSizes[child.ID]
			}
		}
	}
	return sum, nil
}

func (f *fakeFileNodeStore) SumFileSizesByProvider(_ context.Context, projectID int64, provider string) (int64, error) {
	var sum int64
	for _, node := range f.nodes {
		if node.ProjectID == projectID && node.Provider == provider &&
			node.IsFile() && !node.IsTrashed() {
			sum += f.fileSizes[node.ID]
		}
	}
	return sum, nil
}

func (f *fakeFileNodeStore) SumFileSizesForProjects(_ context.Context, projectIDs []int64, bulkMountOnly bool) (int64, error) {
	members := map[int64]bool{}
	for _, id := range projectIDs {
		members[id] = true
	}
	var sum int64
	for _, node := range f.nodes {
		if !members[node.ProjectID] || !node.IsFile() || node.IsTrashed() {
			continue
		}
		if bulkMountOnly && node.Provider != domain.BulkMountProvider {
			continue
		}
		sum += f.fileSizes[node.ID]
	}
	return sum, nil
}

type fakeFileInfoStore struct {
	sizes map[int64]int64
}

func newFakeFileInfoStore() *fakeFileInfoStore {
	return &fakeFileInfoStore{sizes: map[int64]int64{}}
}

func (f *fakeFileInfoStore) GetByFileNodeID(_ context.Context, fileNodeID int64) (*domain.FileInfo, error) {
	size, ok := f.sizes[fileNodeID]
	if !ok {
		return nil, nil
	}
	return &domain.FileInfo{FileNodeID: fileNodeID, FileSize: size}, nil
}

func (f *fakeFileInfoStore) Create(_ context.Context, fileNodeID, fileSize int64) error {
	f.sizes[fileNodeID] = fileSize
	return nil
}

func (f *fakeFileInfoStore) Save(_ context.Context, fileNodeID, fileSize int64) error {
	f.sizes[fileNodeID] = fileSize
	return nil
}

type quotaKey struct {
	userID int64
	second int64
}

type fakeQuotaStore struct {
	storageQuotas map[quotaKey]*domain.UserStorageQuota
	userQuotas    map[quotaKey]*domain.UserQuota
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{
		storageQuotas: map[quotaKey]*domain.UserStorageQuota{},
		userQuotas:    map[quotaKey]*domain.UserQuota{},
	}
}

func (f *fakeQuotaStore) seedStorageQuota(userID, regionID, maxQuota, used int64) {
	f.storageQuotas[quotaKey{userID, regionID}] = &domain.UserStorageQuota{
		UserID:   userID,
		RegionID: regionID,
		MaxQuota: maxQuota,
		Used:     used,
	}
}

func (f *fakeQuotaStore) used(userID, regionID int64) int64 {
	if quota, ok := f.storageQuotas[quotaKey{userID, regionID}]; ok {
		return quota.Used
	}
	return -1
}

func (f *fakeQuotaStore) ensure(userID, regionID int64) *domain.UserStorageQuota {
	key := quotaKey{userID, regionID}
	if quota, ok := f.storageQuotas[key]; ok {
		return quota
	}
	quota := &domain.UserStorageQuota{
		UserID:   userID,
		RegionID: regionID,
		MaxQuota: domain.DefaultMaxQuota,
	}
	f.storageQuotas[key] = quota
	return quota
}

func (f *fakeQuotaStore) GetUserStorageQuota(_ context.Context, userID, regionID int64) (*domain.UserStorageQuota, error) {
	if quota, ok := f.storageQuotas[quotaKey{userID, regionID}]; ok {
		copied := *quota
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeQuotaStore) AddUsedWithDefault(_ context.Context, userID, regionID, delta int64) error {
	quota := f.ensure(userID, regionID)
	quota.Used += delta
	if quota.Used < 0 {
		quota.Used = 0
	}
	return nil
}

func (f *fakeQuotaStore) SubtractSizesClamped(_ context.Context, userID, regionID int64, sizes []int64) error {
	quota := f.ensure(userID, regionID)
	for _, size := range sizes {
		if size > quota.Used {
			size = quota.Used
		}
		quota.Used -= size
	}
	return nil
}

func (f *fakeQuotaStore) UpdateUsedWithCreate(_ context.Context, userID, regionID, size int64, add bool) error {
	key := quotaKey{userID, regionID}
	if quota, ok := f.storageQuotas[key]; ok {
		delta := size
		if !add {
			delta = -size
		}
		quota.Used += delta
		if quota.Used < 0 {
			quota.Used = 0
		}
		return nil
	}

	f.storageQuotas[key] = &domain.UserStorageQuota{
		UserID:   userID,
		RegionID: regionID,
		MaxQuota: domain.DefaultMaxQuota,
		Used:     size,
	}
	f.addUserQuotaMax(userID, domain.StorageTypeCustom, domain.DefaultMaxQuota)
	return nil
}

func (f *fakeQuotaStore) SetUsedIfExists(_ context.Context, userID, regionID, used int64) (bool, error) {
	if quota, ok := f.storageQuotas[quotaKey{userID, regionID}]; ok {
		quota.Used = used
		return true, nil
	}
	return false, nil
}

func (f *fakeQuotaStore) SetMaxQuota(_ context.Context, userID, regionID, maxQuota int64) error {
	key := quotaKey{userID, regionID}
	var oldMax int64
	if quota, ok := f.storageQuotas[key]; ok {
		oldMax = quota.MaxQuota
		quota.MaxQuota = maxQuota
	} else {
		f.storageQuotas[key] = &domain.UserStorageQuota{
			UserID:   userID,
			RegionID: regionID,
			MaxQuota: maxQuota,
		}
	}
	f.addUserQuotaMax(userID, domain.StorageTypeCustom, maxQuota-oldMax)
	return nil
}

func (f *fakeQuotaStore) ListUserStorageQuotas(_ context.Context) ([]domain.UserStorageQuota, error) {
	var quotas []domain.UserStorageQuota
	for _, quota := range f.storageQuotas {
		quotas = append(quotas, *quota)
	}
	return quotas, nil
}

func (f *fakeQuotaStore) GetUserQuota(_ context.Context, userID int64, storageType domain.StorageType) (*domain.UserQuota, error) {
	if quota, ok := f.userQuotas[quotaKey{userID, int64(storageType)}]; ok {
		copied := *quota
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeQuotaStore) UpsertUserQuotaUsed(_ context.Context, userID int64, storageType domain.StorageType, used int64) error {
	key := quotaKey{userID, int64(storageType)}
	if quota, ok := f.userQuotas[key]; ok {
		quota.Used = used
		return nil
	}
	f.userQuotas[key] = &domain.UserQuota{
		UserID:      userID,
		StorageType: storageType,
		MaxQuota:    domain.DefaultMaxQuota,
		Used:        used,
	}
	return nil
}

func (f *fakeQuotaStore) addUserQuotaMax(userID int64, storageType domain.StorageType, delta int64) {
	key := quotaKey{userID, int64(storageType)}
	if quota, ok := f.userQuotas[key]; ok {
		quota.MaxQuota += delta
		if quota.MaxQuota < 0 {
			quota.MaxQuota = 0
		}
		return
	}
	maxQuota := delta
	if maxQuota < 0 {
		maxQuota = 0
	}
	f.userQuotas[key] = &domain.UserQuota{
		UserID:      userID,
		StorageType: storageType,
		MaxQuota:    maxQuota,
	}
}
