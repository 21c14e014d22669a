package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rdmquota/internal/domain"
)

// LedgerService is the accounting engine. The storage-operation subsystem
// calls HandleFileEvent directly after a successful file operation; the
// ledger mutates the per-(user, region) and per-(user, storage-type) counters
// accordingly. Accounting failures are logged and swallowed per event so that
// bookkeeping can never break the file operation that triggered it; only
// malformed requests and infrastructure errors surface to the caller.
type LedgerService struct {
	projects    ProjectStore
	nodes       FileNodeStore
	fileInfos   FileInfoStore
	quotas      QuotaStore
	catalog     *CatalogService
	classifier  *ClassifierService
	resolver    *ResolverService
	niiRegionID int64
	log         zerolog.Logger
}

func NewLedgerService(
	projects ProjectStore,
	nodes FileNodeStore,
	fileInfos FileInfoStore,
	quotas QuotaStore,
	catalog *CatalogService,
	classifier *ClassifierService,
	resolver *ResolverService,
	niiRegionID int64,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		projects:    projects,
		nodes:       nodes,
		fileInfos:   fileInfos,
		quotas:      quotas,
		catalog:     catalog,
		classifier:  classifier,
		resolver:    resolver,
		niiRegionID: niiRegionID,
		log:         log,
	}
}

// HandleFileEvent dispatches one file-lifecycle event to the accounting state
// machine. Unrecognized providers are a no-op for every event kind.
func (s *LedgerService) HandleFileEvent(ctx context.Context, event *domain.FileEvent) error {
	provider := event.Provider()
	if !domain.IsQuotaTrackedProvider(provider) {
		return nil
	}

	project, err := s.projects.GetByGUID(ctx, event.ProjectGUID)
	if err != nil {
		return err
	}
	if project == nil {
		s.log.Error().Str("project", event.ProjectGUID).Msg("project not found, cannot update used quota")
		return nil
	}

	kind := event.Kind()

	var node *domain.FileNode
	var storageType domain.StorageType
	switch event.Type {
	case domain.FileMoved, domain.FileCopied, domain.FileRenamed:
		// Move/copy/rename payloads carry their sizes; no node resolution.
	default:
		if domain.IsAddonMethodProvider(provider) &&
			kind == domain.KindFolder && event.Payload.Action == domain.ActionCreateFolder {
			// Folders created through addon providers are not quota-tracked
			// at creation time; only their contained files count.
			return nil
		}

		node, err = s.resolver.Resolve(ctx, project, provider, &event.Payload)
		if err != nil {
			return err
		}
		if node == nil && kind != domain.KindFolder {
			s.log.Error().
				Str("project", event.ProjectGUID).
				Str("provider", provider).
				Str("path", event.Payload.Metadata.Path).
				Msg("file node not found, cannot update used quota")
			return nil
		}

		storageType, err = s.classifier.Classify(ctx, project)
		if err != nil {
			return err
		}
	}

	switch event.Type {
	case domain.FileAdded:
		return s.fileAdded(ctx, project, event, node, storageType)
	case domain.FileRemoved:
		return s.fileRemoved(ctx, project, event, node, kind, storageType)
	case domain.FileUpdated:
		return s.fileModified(ctx, project, event, node, storageType)
	case domain.FileMoved:
		return s.fileTransferred(ctx, project, event, true)
	case domain.FileCopied:
		return s.fileTransferred(ctx, project, event, false)
	case domain.FileRenamed:
		return s.fileRenamed(ctx, project, event)
	}

	s.log.Debug().Str("event_type", string(event.Type)).Msg("ignoring unknown file event type")
	return nil
}

func (s *LedgerService) fileAdded(ctx context.Context, project *domain.Project, event *domain.FileEvent, node *domain.FileNode, storageType domain.StorageType) error {
	size := event.Payload.Metadata.Size
	if size == nil || *size < 0 {
		// Malformed payload; not an error surfaced to the caller.
		return nil
	}
	if node == nil || !node.IsFile() {
		return nil
	}

	regionID, ok, err := s.resolveRegionID(ctx, project, event.Provider(), storageType)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Error().Str("project", project.GUID).Msg("institutional storage not found, cannot update used quota")
		return nil
	}

	if err := s.quotas.AddUsedWithDefault(ctx, project.CreatorID, regionID, *size); err != nil {
		return fmt.Errorf("failed to add used quota: %w", err)
	}

	return s.fileInfos.Create(ctx, node.ID, *size)
}

func (s *LedgerService) fileRemoved(ctx context.Context, project *domain.Project, event *domain.FileEvent, node *domain.FileNode, kind string, storageType domain.StorageType) error {
	provider := event.Provider()

	if !domain.IsAddonMethodProvider(provider) {
		return s.nodeRemoved(ctx, project, event, node, storageType)
	}

	actingUser, err := s.projects.GetUserByGUID(ctx, event.UserGUID)
	if err != nil {
		return err
	}
	var actingUserID int64
	if actingUser != nil {
		actingUserID = actingUser.ID
	}

	if kind == domain.KindFile {
		if node == nil {
			return nil
		}
		if err := s.markTrashed(ctx, node, actingUserID); err != nil {
			return err
		}
		return s.nodeRemoved(ctx, project, event, node, storageType)
	}

	// Folder removal through an addon provider: the cascade discovers live
	// nodes under the deleted folder's materialized path, scoped to the
	// event's storage root, marks them deleted, then subtracts each file.
	root, err := s.nodes.FindRootByExternalID(ctx, strings.Trim(event.Payload.RootPath, "/"))
	if err != nil {
		return err
	}
	if root == nil {
		s.log.Error().Str("root_path", event.Payload.RootPath).Msg("storage root not found, cannot update used quota")
		return nil
	}

	descendants, err := s.nodes.ListLiveByMaterializedPrefix(
		ctx, project.ID, provider, event.Payload.Metadata.Materialized, root.ID)
	if err != nil {
		return err
	}

	for i := range descendants {
		descendant := &descendants[i]
		if err := s.markTrashed(ctx, descendant, actingUserID); err != nil {
			return err
		}
		if descendant.IsFile() {
			if err := s.nodeRemoved(ctx, project, event, descendant, storageType); err != nil {
				return err
			}
		}
	}
	return nil
}

// nodeRemoved subtracts the recorded sizes of a trashed node and, for
// folders, all files discovered under it. Each subtraction is clamped at the
// counter's current value so the ledger never goes negative.
func (s *LedgerService) nodeRemoved(ctx context.Context, project *domain.Project, event *domain.FileEvent, node *domain.FileNode, storageType domain.StorageType) error {
	if node == nil {
		s.log.Error().Str("project", project.GUID).Msg("file node not found, cannot update used quota")
		return nil
	}

	regionID, ok, err := s.resolveRegionID(ctx, project, event.Provider(), storageType)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Error().Str("project", project.GUID).Msg("institutional storage not found, cannot update used quota")
		return nil
	}

	if !node.IsTrashed() {
		s.log.Error().Int64("file_node_id", node.ID).Msg("file node is not trashed, cannot update used quota")
		return nil
	}

	files, err := s.nodeFileList(ctx, node)
	if err != nil {
		return err
	}

	sizes := make([]int64, 0, len(files))
	for i := range files {
		info, err := s.fileInfos.GetByFileNodeID(ctx, files[i].ID)
		if err != nil {
			return err
		}
		if info == nil {
			s.log.Error().Int64("file_node_id", files[i].ID).Msg("file info not found, cannot update used quota")
			continue
		}
		sizes = append(sizes, info.FileSize)
	}

	return s.quotas.SubtractSizesClamped(ctx, project.CreatorID, regionID, sizes)
}

func (s *LedgerService) fileModified(ctx context.Context, project *domain.Project, event *domain.FileEvent, node *domain.FileNode, storageType domain.StorageType) error {
	size := event.Payload.Metadata.Size
	if size == nil || *size < 0 {
		return nil
	}
	if node == nil {
		return nil
	}

	regionID, ok, err := s.resolveRegionID(ctx, project, event.Provider(), storageType)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Error().Str("project", project.GUID).Msg("institutional storage not found, cannot update used quota")
		return nil
	}

	var oldSize int64
	info, err := s.fileInfos.GetByFileNodeID(ctx, node.ID)
	if err != nil {
		return err
	}
	if info != nil {
		oldSize = info.FileSize
	} else {
		s.log.Error().Int64("file_node_id", node.ID).Msg("file info not found, assuming zero prior size")
	}

	if err := s.quotas.AddUsedWithDefault(ctx, project.CreatorID, regionID, *size-oldSize); err != nil {
		return fmt.Errorf("failed to update used quota: %w", err)
	}

	return s.fileInfos.Save(ctx, node.ID, *size)
}

// fileTransferred handles move and copy. Only custom-storage projects are
// accounted here; the event's source/destination blocks carry the sizes, so
// no node resolution happens. First touch of a destination region creates its
// counter row and raises the user's aggregate custom ceiling by the new row's
// default max.
func (s *LedgerService) fileTransferred(ctx context.Context, project *domain.Project, event *domain.FileEvent, isMove bool) error {
	storageType, err := s.classifier.Classify(ctx, project)
	if err != nil {
		return err
	}
	if storageType != domain.StorageTypeCustom {
		return nil
	}

	dest := event.Payload.Destination
	if dest == nil {
		return nil
	}

	size := int64(-1)
	if dest.Size != nil {
		size = *dest.Size
	} else if dest.Children != nil {
		size = dest.TreeSize()
	}
	if size < 0 {
		return nil
	}

	if domain.IsQuotaTrackedProvider(dest.Provider) {
		regionID, ok, err := s.resolveRegionID(ctx, project, dest.Provider, storageType)
		if err != nil {
			return err
		}
		if ok {
			err = s.quotas.UpdateUsedWithCreate(ctx, project.CreatorID, regionID, size, true)
			if err != nil {
				return fmt.Errorf("failed to add used quota at destination: %w", err)
			}
		} else {
			s.log.Error().Str("provider", dest.Provider).Msg("destination storage not found, cannot update used quota")
		}
	}

	if !isMove {
		return nil
	}

	source := event.Payload.Source
	if source == nil || !domain.IsQuotaTrackedProvider(source.Provider) {
		return nil
	}

	sourceProject := project
	if source.NodeGUID != "" && source.NodeGUID != project.GUID {
		sourceProject, err = s.projects.GetByGUID(ctx, source.NodeGUID)
		if err != nil {
			return err
		}
		if sourceProject == nil {
			s.log.Error().Str("project", source.NodeGUID).Msg("source project not found, cannot update used quota")
			return nil
		}
	}
	// Quick-files pseudo-projects are not institutionally accounted.
	if sourceProject.Type == domain.ProjectTypeQuickFiles {
		return nil
	}

	regionID, ok, err := s.resolveRegionIDForProject(ctx, sourceProject, source.Provider)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Error().Str("provider", source.Provider).Msg("source storage not found, cannot update used quota")
		return nil
	}

	err = s.quotas.UpdateUsedWithCreate(ctx, project.CreatorID, regionID, size, false)
	if err != nil {
		return fmt.Errorf("failed to subtract used quota at source: %w", err)
	}
	return nil
}

// fileRenamed is size-neutral; it only re-resolves the node by its new
// materialized path, tolerating "not found yet" since callers may notify
// before or after the rename lands.
func (s *LedgerService) fileRenamed(ctx context.Context, project *domain.Project, event *domain.FileEvent) error {
	provider := event.Provider()
	if !domain.IsAddonMethodProvider(provider) {
		return nil
	}

	payload := event.Payload
	if dest := payload.Destination; dest != nil {
		payload.Metadata.Materialized = dest.Materialized
		if dest.RootPath != "" {
			payload.RootPath = dest.RootPath
		}
	}

	node, err := s.resolver.Resolve(ctx, project, provider, &payload)
	if err != nil {
		return err
	}
	if node == nil {
		s.log.Debug().
			Str("project", project.GUID).
			Str("materialized", payload.Metadata.Materialized).
			Msg("renamed file node not resolved yet")
	}
	return nil
}

// resolveRegionID maps an event to the counter row's region. Default-storage
// projects always account against the NII region; custom-storage projects use
// their assigned region for bulk-mount events and the creator's institution
// for addon-method events.
func (s *LedgerService) resolveRegionID(ctx context.Context, project *domain.Project, provider string, storageType domain.StorageType) (int64, bool, error) {
	if storageType != domain.StorageTypeCustom {
		return s.niiRegionID, true, nil
	}
	return s.resolveRegionIDForProject(ctx, project, provider)
}

func (s *LedgerService) resolveRegionIDForProject(ctx context.Context, project *domain.Project, provider string) (int64, bool, error) {
	if domain.ClassifyProvider(provider) == domain.BulkMount {
		if project.RegionID == nil {
			return 0, false, nil
		}
		return *project.RegionID, true, nil
	}

	creator, err := s.projects.GetUserByID(ctx, project.CreatorID)
	if err != nil {
		return 0, false, err
	}
	if creator == nil || creator.InstitutionID == nil {
		return 0, false, nil
	}

	region, err := s.catalog.FindRegion(ctx, *creator.InstitutionID, provider)
	if err != nil {
		return 0, false, err
	}
	if region == nil {
		return 0, false, nil
	}
	return region.ID, true, nil
}

// nodeFileList collects the files to subtract for a removal: the node itself,
// or a breadth-first walk of a folder's descendants.
func (s *LedgerService) nodeFileList(ctx context.Context, node *domain.FileNode) ([]domain.FileNode, error) {
	if node.IsFile() {
		return []domain.FileNode{*node}, nil
	}

	var files []domain.FileNode
	folderIDs := []int64{node.ID}
	for len(folderIDs) > 0 {
		children, err := s.nodes.ListChildren(ctx, folderIDs)
		if err != nil {
			return nil, err
		}
		folderIDs = folderIDs[:0]
		for i := range children {
			if children[i].IsFolder() {
				folderIDs = append(folderIDs, children[i].ID)
			} else {
				files = append(files, children[i])
			}
		}
	}
	return files, nil
}

func (s *LedgerService) markTrashed(ctx context.Context, node *domain.FileNode, actingUserID int64) error {
	if err := s.nodes.MarkTrashed(ctx, node.ID, actingUserID); err != nil {
		return err
	}
	now := time.Now()
	node.DeletedOn = &now
	node.DeletedByID = &actingUserID
	return nil
}
