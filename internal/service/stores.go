package service

import (
	"context"

	"rdmquota/internal/domain"
)

// Store interfaces decouple the accounting services from the persistence
// layer. internal/repository provides the sqlx implementations.

type RegionStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Region, error)
	FindByInstitutionAndProvider(ctx context.Context, institutionID int64, provider string) (*domain.Region, error)
}

type ProjectStore interface {
	GetByGUID(ctx context.Context, guid string) (*domain.Project, error)
	GetStorageType(ctx context.Context, projectID int64) (domain.StorageType, bool, error)
	ListOwnedByStorageType(ctx context.Context, creatorID int64, storageType domain.StorageType) ([]domain.Project, error)
	GetUserByGUID(ctx context.Context, guid string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

type FileNodeStore interface {
	GetByExternalID(ctx context.Context, projectID int64, externalID string) (*domain.FileNode, error)
	FindRootByExternalID(ctx context.Context, externalID string) (*domain.FileNode, error)
	GetStorageRoot(ctx context.Context, projectID int64, provider string) (*domain.FileNode, error)
	FindByCompositePath(ctx context.Context, projectID int64, provider, path, name string) (*domain.FileNode, error)
	FindByMaterializedPath(ctx context.Context, projectID int64, provider, materialized, name string) (*domain.FileNode, error)
	ListChildren(ctx context.Context, parentIDs []int64) ([]domain.FileNode, error)
	ListLiveByMaterializedPrefix(ctx context.Context, projectID int64, provider, prefix string, rootID int64) ([]domain.FileNode, error)
	MarkTrashed(ctx context.Context, nodeID, userID int64) error
	SumFileSizesUnderRoot(ctx context.Context, projectID, rootID int64) (int64, error)
	SumFileSizesByProvider(ctx context.Context, projectID int64, provider string) (int64, error)
	SumFileSizesForProjects(ctx context.Context, projectIDs []int64, bulkMountOnly bool) (int64, error)
}

type FileInfoStore interface {
	GetByFileNodeID(ctx context.Context, fileNodeID int64) (*domain.FileInfo, error)
	Create(ctx context.Context, fileNodeID, fileSize int64) error
	Save(ctx context.Context, fileNodeID, fileSize int64) error
}

type QuotaStore interface {
	GetUserStorageQuota(ctx context.Context, userID, regionID int64) (*domain.UserStorageQuota, error)
	AddUsedWithDefault(ctx context.Context, userID, regionID, delta int64) error
	SubtractSizesClamped(ctx context.Context, userID, regionID int64, sizes []int64) error
	UpdateUsedWithCreate(ctx context.Context, userID, regionID, size int64, add bool) error
	SetUsedIfExists(ctx context.Context, userID, regionID, used int64) (bool, error)
	SetMaxQuota(ctx context.Context, userID, regionID, maxQuota int64) error
	ListUserStorageQuotas(ctx context.Context) ([]domain.UserStorageQuota, error)
	GetUserQuota(ctx context.Context, userID int64, storageType domain.StorageType) (*domain.UserQuota, error)
	UpsertUserQuotaUsed(ctx context.Context, userID int64, storageType domain.StorageType, used int64) error
}
