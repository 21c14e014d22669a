package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rdmquota/internal/domain"
)

type FileNodeRepository struct {
	db *sqlx.DB
}

func NewFileNodeRepository(db *sqlx.DB) *FileNodeRepository {
	return &FileNodeRepository{db: db}
}

// GetByExternalID looks up a bulk-mount node by its stable id within a
// project.
func (r *FileNodeRepository) GetByExternalID(ctx context.Context, projectID int64, externalID string) (*domain.FileNode, error) {
	var node domain.FileNode
	query := `SELECT * FROM file_nodes WHERE project_id = $1 AND external_id = $2`

	err := r.db.GetContext(ctx, &node, query, projectID, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file node by external id: %w", err)
	}

	return &node, nil
}

// FindRootByExternalID locates a storage root folder regardless of project,
// as carried in an event's root_path.
func (r *FileNodeRepository) FindRootByExternalID(ctx context.Context, externalID string) (*domain.FileNode, error) {
	var node domain.FileNode
	query := `SELECT * FROM file_nodes WHERE external_id = $1 ORDER BY id LIMIT 1`

	err := r.db.GetContext(ctx, &node, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find root node: %w", err)
	}

	return &node, nil
}

// GetStorageRoot returns the root folder of a project's storage mount.
func (r *FileNodeRepository) GetStorageRoot(ctx context.Context, projectID int64, provider string) (*domain.FileNode, error) {
	var node domain.FileNode
	query := `
        SELECT * FROM file_nodes
        WHERE project_id = $1 AND provider = $2 AND parent_id IS NULL AND kind = 'folder'
        ORDER BY id
        LIMIT 1`

	err := r.db.GetContext(ctx, &node, query, projectID, provider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get storage root: %w", err)
	}

	return &node, nil
}

// FindByCompositePath looks up an addon-method node by the composite
// "/root_path/materialized" path. Most-recent id wins so a live node is
// preferred over stale duplicates left behind by renames.
func (r *FileNodeRepository) FindByCompositePath(ctx context.Context, projectID int64, provider, path, name string) (*domain.FileNode, error) {
	var node domain.FileNode
	query := `
        SELECT * FROM file_nodes
        WHERE project_id = $1 AND provider = $2 AND path = $3 AND name = $4
        ORDER BY id DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &node, query, projectID, provider, path, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find file node by path: %w", err)
	}

	return &node, nil
}

// FindByMaterializedPath looks up an addon-method node by exact materialized
// path. Used for providers that do not prefix paths with a root folder id.
func (r *FileNodeRepository) FindByMaterializedPath(ctx context.Context, projectID int64, provider, materialized, name string) (*domain.FileNode, error) {
	var node domain.FileNode
	query := `
        SELECT * FROM file_nodes
        WHERE project_id = $1 AND provider = $2 AND materialized_path = $3 AND name = $4
        ORDER BY id DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &node, query, projectID, provider, materialized, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find file node by materialized path: %w", err)
	}

	return &node, nil
}

// ListChildren returns the direct children of the given folders. The ledger
// walks deletion cascades breadth-first with repeated calls.
func (r *FileNodeRepository) ListChildren(ctx context.Context, parentIDs []int64) ([]domain.FileNode, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM file_nodes WHERE parent_id IN (?) ORDER BY id`, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build children query: %w", err)
	}

	var nodes []domain.FileNode
	err = r.db.SelectContext(ctx, &nodes, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	return nodes, nil
}

// ListLiveByMaterializedPrefix returns non-deleted nodes under a materialized
// path, scoped to a storage root folder. Feeds the addon folder-deletion
// cascade.
func (r *FileNodeRepository) ListLiveByMaterializedPrefix(ctx context.Context, projectID int64, provider, prefix string, rootID int64) ([]domain.FileNode, error) {
	var nodes []domain.FileNode
	query := `
        SELECT * FROM file_nodes
        WHERE project_id = $1
          AND provider = $2
          AND materialized_path LIKE $3 || '%'
          AND deleted_on IS NULL
          AND parent_id = $4
        ORDER BY id`

	err := r.db.SelectContext(ctx, &nodes, query, projectID, provider, prefix, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes by materialized prefix: %w", err)
	}

	return nodes, nil
}

// MarkTrashed soft-deletes a node on behalf of the acting user.
func (r *FileNodeRepository) MarkTrashed(ctx context.Context, nodeID, userID int64) error {
	query := `
        UPDATE file_nodes
        SET deleted_on = CURRENT_TIMESTAMP,
            deleted_by_id = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND deleted_on IS NULL`

	_, err := r.db.ExecContext(ctx, query, userID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to mark file node trashed: %w", err)
	}
	return nil
}

// SumFileSizesUnderRoot walks the parent chain from a bulk-mount root folder
// and sums the recorded sizes of its live files.
func (r *FileNodeRepository) SumFileSizesUnderRoot(ctx context.Context, projectID, rootID int64) (int64, error) {
	var total int64
	query := `
        WITH RECURSIVE node_tree AS (
            SELECT id, kind FROM file_nodes
            WHERE project_id = $1 AND parent_id = $2
              AND deleted_on IS NULL AND deleted_by_id IS NULL

            UNION ALL

            SELECT fn.id, fn.kind FROM file_nodes fn
            INNER JOIN node_tree nt ON fn.parent_id = nt.id
            WHERE fn.deleted_on IS NULL AND fn.deleted_by_id IS NULL
        )
        SELECT COALESCE(SUM(fi.file_size), 0)
        FROM node_tree nt
        JOIN file_info fi ON fi.file_node_id = nt.id
        WHERE nt.kind = 'file'`

	err := r.db.GetContext(ctx, &total, query, projectID, rootID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes under root: %w", err)
	}

	return total, nil
}

// SumFileSizesByProvider sums recorded sizes of a project's live files for an
// addon-method provider.
func (r *FileNodeRepository) SumFileSizesByProvider(ctx context.Context, projectID int64, provider string) (int64, error) {
	var total int64
	query := `
        SELECT COALESCE(SUM(fi.file_size), 0)
        FROM file_nodes fn
        JOIN file_info fi ON fi.file_node_id = fn.id
        WHERE fn.project_id = $1
          AND fn.provider = $2
          AND fn.kind = 'file'
          AND fn.deleted_on IS NULL
          AND fn.deleted_by_id IS NULL`

	err := r.db.GetContext(ctx, &total, query, projectID, provider)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes by provider: %w", err)
	}

	return total, nil
}

// SumFileSizesForProjects sums recorded sizes of live files across projects,
// optionally restricted to the bulk-mount provider.
func (r *FileNodeRepository) SumFileSizesForProjects(ctx context.Context, projectIDs []int64, bulkMountOnly bool) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}

	base := `
        SELECT COALESCE(SUM(fi.file_size), 0)
        FROM file_nodes fn
        JOIN file_info fi ON fi.file_node_id = fn.id
        WHERE fn.project_id IN (?)
          AND fn.kind = 'file'
          AND fn.deleted_on IS NULL
          AND fn.deleted_by_id IS NULL`
	args := []interface{}{projectIDs}
	if bulkMountOnly {
		base += ` AND fn.provider = ?`
		args = append(args, domain.BulkMountProvider)
	}

	query, inArgs, err := sqlx.In(base, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to build sum query: %w", err)
	}

	var total int64
	err = r.db.GetContext(ctx, &total, r.db.Rebind(query), inArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes for projects: %w", err)
	}

	return total, nil
}
