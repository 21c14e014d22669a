package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rdmquota/internal/domain"
)

// QuotaRepository owns the two counter tables. Every read-modify-write locks
// the counter row with SELECT ... FOR UPDATE so concurrent file operations on
// the same user serialize instead of losing updates. Lazy row creation is an
// INSERT ... ON CONFLICT DO NOTHING against the unique (user, region) /
// (user, storage_type) constraints, so first-writes cannot duplicate rows.
type QuotaRepository struct {
	db *sqlx.DB
}

func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) GetUserStorageQuota(ctx context.Context, userID, regionID int64) (*domain.UserStorageQuota, error) {
	var quota domain.UserStorageQuota
	query := `SELECT * FROM user_storage_quotas WHERE user_id = $1 AND region_id = $2`

	err := r.db.GetContext(ctx, &quota, query, userID, regionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user storage quota: %w", err)
	}

	return &quota, nil
}

// AddUsedWithDefault applies a signed byte delta to the (user, region)
// counter, creating the row with the default max quota when absent. The
// counter is clamped at zero.
func (r *QuotaRepository) AddUsedWithDefault(ctx context.Context, userID, regionID, delta int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUserStorageQuota(ctx, tx, userID, regionID); err != nil {
		return err
	}

	query := `
        UPDATE user_storage_quotas
        SET used = GREATEST(0, used + $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND region_id = $3`

	if _, err := tx.ExecContext(ctx, query, delta, userID, regionID); err != nil {
		return fmt.Errorf("failed to update used space: %w", err)
	}

	return tx.Commit()
}

// SubtractSizesClamped subtracts a batch of recorded file sizes from the
// (user, region) counter inside one transaction, clamping each subtraction at
// the then-current counter value. Used by deletion cascades.
func (r *QuotaRepository) SubtractSizesClamped(ctx context.Context, userID, regionID int64, sizes []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUserStorageQuota(ctx, tx, userID, regionID); err != nil {
		return err
	}

	var used int64
	lockQuery := `
        SELECT used FROM user_storage_quotas
        WHERE user_id = $1 AND region_id = $2
        FOR UPDATE`
	if err := tx.GetContext(ctx, &used, lockQuery, userID, regionID); err != nil {
		return fmt.Errorf("failed to lock user storage quota: %w", err)
	}

	for _, size := range sizes {
		if size > used {
			size = used
		}
		used -= size
	}

	query := `
        UPDATE user_storage_quotas
        SET used = $1, updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND region_id = $3`
	if _, err := tx.ExecContext(ctx, query, used, userID, regionID); err != nil {
		return fmt.Errorf("failed to update used space: %w", err)
	}

	return tx.Commit()
}

// UpdateUsedWithCreate applies a move/copy size to the (user, region)
// counter. When the row does not exist yet, it is created with the default
// max quota and used set to the size, and the user's aggregate custom
// UserQuota ceiling is raised by the new row's max.
func (r *QuotaRepository) UpdateUsedWithCreate(ctx context.Context, userID, regionID, size int64, add bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var quota domain.UserStorageQuota
	lockQuery := `
        SELECT * FROM user_storage_quotas
        WHERE user_id = $1 AND region_id = $2
        FOR UPDATE`
	err = tx.GetContext(ctx, &quota, lockQuery, userID, regionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock user storage quota: %w", err)
		}

		insertQuery := `
            INSERT INTO user_storage_quotas (user_id, region_id, max_quota, used)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (user_id, region_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insertQuery, userID, regionID, domain.DefaultMaxQuota, size); err != nil {
			return fmt.Errorf("failed to create user storage quota: %w", err)
		}

		if err := addUserQuotaMax(ctx, tx, userID, domain.StorageTypeCustom, domain.DefaultMaxQuota); err != nil {
			return err
		}

		return tx.Commit()
	}

	delta := size
	if !add {
		delta = -size
	}
	query := `
        UPDATE user_storage_quotas
        SET used = GREATEST(0, used + $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $2 AND region_id = $3`
	if _, err := tx.ExecContext(ctx, query, delta, userID, regionID); err != nil {
		return fmt.Errorf("failed to update used space: %w", err)
	}

	return tx.Commit()
}

// SetUsedIfExists writes a recalculated used value back to the counter row.
// No row is created; reconciliation repairs counters, it never mints them.
func (r *QuotaRepository) SetUsedIfExists(ctx context.Context, userID, regionID, used int64) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	lockQuery := `
        SELECT id FROM user_storage_quotas
        WHERE user_id = $1 AND region_id = $2
        FOR UPDATE`
	err = tx.GetContext(ctx, &id, lockQuery, userID, regionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock user storage quota: %w", err)
	}

	query := `
        UPDATE user_storage_quotas
        SET used = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, used, id); err != nil {
		return false, fmt.Errorf("failed to set used space: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SetMaxQuota sets an administrator-chosen ceiling on the (user, region)
// counter and adjusts the user's aggregate custom ceiling by the delta,
// clamped at zero.
func (r *QuotaRepository) SetMaxQuota(ctx context.Context, userID, regionID, maxQuota int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldMax int64
	lockQuery := `
        SELECT max_quota FROM user_storage_quotas
        WHERE user_id = $1 AND region_id = $2
        FOR UPDATE`
	err = tx.GetContext(ctx, &oldMax, lockQuery, userID, regionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock user storage quota: %w", err)
		}

		insertQuery := `
            INSERT INTO user_storage_quotas (user_id, region_id, max_quota, used)
            VALUES ($1, $2, $3, 0)
            ON CONFLICT (user_id, region_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insertQuery, userID, regionID, maxQuota); err != nil {
			return fmt.Errorf("failed to create user storage quota: %w", err)
		}
		oldMax = 0
	} else {
		query := `
            UPDATE user_storage_quotas
            SET max_quota = $1, updated_at = CURRENT_TIMESTAMP
            WHERE user_id = $2 AND region_id = $3`
		if _, err := tx.ExecContext(ctx, query, maxQuota, userID, regionID); err != nil {
			return fmt.Errorf("failed to update max quota: %w", err)
		}
	}

	if err := addUserQuotaMax(ctx, tx, userID, domain.StorageTypeCustom, maxQuota-oldMax); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *QuotaRepository) ListUserStorageQuotas(ctx context.Context) ([]domain.UserStorageQuota, error) {
	var quotas []domain.UserStorageQuota
	query := `SELECT * FROM user_storage_quotas ORDER BY id`

	err := r.db.SelectContext(ctx, &quotas, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user storage quotas: %w", err)
	}

	return quotas, nil
}

func (r *QuotaRepository) GetUserQuota(ctx context.Context, userID int64, storageType domain.StorageType) (*domain.UserQuota, error) {
	var quota domain.UserQuota
	query := `SELECT * FROM user_quotas WHERE user_id = $1 AND storage_type = $2`

	err := r.db.GetContext(ctx, &quota, query, userID, storageType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user quota: %w", err)
	}

	return &quota, nil
}

// UpsertUserQuotaUsed writes a freshly recomputed used value for the coarse
// counter, creating the row with the default ceiling when absent. This is the
// one recalculation path that creates rows.
func (r *QuotaRepository) UpsertUserQuotaUsed(ctx context.Context, userID int64, storageType domain.StorageType, used int64) error {
	query := `
        INSERT INTO user_quotas (user_id, storage_type, max_quota, used)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, storage_type)
        DO UPDATE SET used = EXCLUDED.used, updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, userID, storageType, domain.DefaultMaxQuota, used)
	if err != nil {
		return fmt.Errorf("failed to upsert user quota: %w", err)
	}
	return nil
}

func ensureUserStorageQuota(ctx context.Context, tx *sqlx.Tx, userID, regionID int64) error {
	query := `
        INSERT INTO user_storage_quotas (user_id, region_id, max_quota, used)
        VALUES ($1, $2, $3, 0)
        ON CONFLICT (user_id, region_id) DO NOTHING`

	if _, err := tx.ExecContext(ctx, query, userID, regionID, domain.DefaultMaxQuota); err != nil {
		return fmt.Errorf("failed to ensure user storage quota: %w", err)
	}
	return nil
}

func addUserQuotaMax(ctx context.Context, tx *sqlx.Tx, userID int64, storageType domain.StorageType, delta int64) error {
	query := `
        INSERT INTO user_quotas (user_id, storage_type, max_quota, used)
        VALUES ($1, $2, GREATEST(0, $3), 0)
        ON CONFLICT (user_id, storage_type)
        DO UPDATE SET max_quota = GREATEST(0, user_quotas.max_quota + $3),
                      updated_at = CURRENT_TIMESTAMP`

	if _, err := tx.ExecContext(ctx, query, userID, storageType, delta); err != nil {
		return fmt.Errorf("failed to adjust user quota ceiling: %w", err)
	}
	return nil
}
