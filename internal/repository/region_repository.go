package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rdmquota/internal/domain"
)

type RegionRepository struct {
	db *sqlx.DB
}

func NewRegionRepository(db *sqlx.DB) *RegionRepository {
	return &RegionRepository{db: db}
}

func (r *RegionRepository) GetByID(ctx context.Context, id int64) (*domain.Region, error) {
	var region domain.Region
	query := `SELECT * FROM regions WHERE id = $1`

	err := r.db.GetContext(ctx, &region, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get region: %w", err)
	}

	return &region, nil
}

// FindByInstitutionAndProvider returns the assigned default region for the
// pair, or nil when no matching region exists. Callers treat nil as "quota
// not trackable here".
func (r *RegionRepository) FindByInstitutionAndProvider(ctx context.Context, institutionID int64, provider string) (*domain.Region, error) {
	var region domain.Region
	query := `
        SELECT * FROM regions
        WHERE institution_id = $1 AND provider = $2
        ORDER BY is_default DESC, id
        LIMIT 1`

	err := r.db.GetContext(ctx, &region, query, institutionID, provider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find region: %w", err)
	}

	return &region, nil
}
