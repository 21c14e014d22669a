package service

import (
	"context"
	"strings"

	"rdmquota/internal/domain"
)

// ResolverService locates the persisted file node a lifecycle event refers
// to. Bulk-mount providers carry a stable node id in the path; addon-method
// providers are matched by materialized path under the event's root folder.
// A nil node is "not found": callers abandon the accounting update and log,
// they never fail the triggering file operation.
type ResolverService struct {
	nodes FileNodeStore
}

func NewResolverService(nodes FileNodeStore) *ResolverService {
	return &ResolverService{nodes: nodes}
}

func (s *ResolverService) Resolve(ctx context.Context, project *domain.Project, provider string, payload *domain.FileEventPayload) (*domain.FileNode, error) {
	if domain.ClassifyProvider(provider) == domain.BulkMount {
		externalID := strings.Trim(payload.Metadata.Path, "/")
		if externalID == "" {
			return nil, nil
		}
		return s.nodes.GetByExternalID(ctx, project.ID, externalID)
	}

	materialized := strings.Trim(payload.Metadata.Materialized, "/")
	name := payload.Metadata.Name

	// OneDrive Business nodes keep no root-prefixed path; match the
	// materialized path directly.
	if provider == "onedrivebusiness" {
		return s.nodes.FindByMaterializedPath(ctx, project.ID, provider, "/"+materialized, name)
	}

	rootPath := strings.Trim(payload.RootPath, "/")
	return s.nodes.FindByCompositePath(ctx, project.ID, provider, "/"+rootPath+"/"+materialized, name)
}
