package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rdmquota/internal/domain"
)

type FileInfoRepository struct {
	db *sqlx.DB
}

func NewFileInfoRepository(db *sqlx.DB) *FileInfoRepository {
	return &FileInfoRepository{db: db}
}

// GetByFileNodeID returns the size record for a file node, or nil when none
// was ever written.
func (r *FileInfoRepository) GetByFileNodeID(ctx context.Context, fileNodeID int64) (*domain.FileInfo, error) {
	var info domain.FileInfo
	query := `SELECT * FROM file_info WHERE file_node_id = $1`

	err := r.db.GetContext(ctx, &info, query, fileNodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &info, nil
}

func (r *FileInfoRepository) Create(ctx context.Context, fileNodeID, fileSize int64) error {
	query := `
        INSERT INTO file_info (file_node_id, file_size)
        VALUES ($1, $2)`

	_, err := r.db.ExecContext(ctx, query, fileNodeID, fileSize)
	if err != nil {
		return fmt.Errorf("failed to create file info: %w", err)
	}
	return nil
}

// Save records the current size for a file node, creating the row if it is
// missing.
func (r *FileInfoRepository) Save(ctx context.Context, fileNodeID, fileSize int64) error {
	query := `
        INSERT INTO file_info (file_node_id, file_size)
        VALUES ($1, $2)
        ON CONFLICT (file_node_id)
        DO UPDATE SET file_size = EXCLUDED.file_size, updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, fileNodeID, fileSize)
	if err != nil {
		return fmt.Errorf("failed to save file info: %w", err)
	}
	return nil
}
