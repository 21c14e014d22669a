package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rdmquota/internal/domain"
)

type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByGUID(ctx context.Context, guid string) (*domain.Project, error) {
	var project domain.Project
	query := `SELECT * FROM projects WHERE guid = $1`

	err := r.db.GetContext(ctx, &project, query, guid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// GetStorageType returns the project's classification row, or (0, false) when
// no row exists. Registrations and forks may lack the row.
func (r *ProjectRepository) GetStorageType(ctx context.Context, projectID int64) (domain.StorageType, bool, error) {
	var storageType domain.StorageType
	query := `SELECT storage_type FROM project_storage_types WHERE project_id = $1`

	err := r.db.GetContext(ctx, &storageType, query, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get project storage type: %w", err)
	}

	return storageType, true, nil
}

// ListOwnedByStorageType returns the user's live projects under the given
// classification.
func (r *ProjectRepository) ListOwnedByStorageType(ctx context.Context, creatorID int64, storageType domain.StorageType) ([]domain.Project, error) {
	var projects []domain.Project
	query := `
        SELECT p.* FROM projects p
        JOIN project_storage_types pst ON pst.project_id = p.id
        WHERE p.creator_id = $1
          AND p.is_deleted = false
          AND pst.storage_type = $2
        ORDER BY p.id`

	err := r.db.SelectContext(ctx, &projects, query, creatorID, storageType)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepository) GetUserByGUID(ctx context.Context, guid string) (*domain.User, error) {
	var user domain.User
	query := `SELECT * FROM users WHERE guid = $1`

	err := r.db.GetContext(ctx, &user, query, guid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *ProjectRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	query := `SELECT * FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
