package domain

import "time"

const (
	// DefaultMaxQuota is the default quota ceiling in SizeUnit units (100 GB).
	DefaultMaxQuota int64 = 100
	// SizeUnit converts stored max_quota units to bytes.
	SizeUnit int64 = 1 << 30
	// BaseForMetricPrefix is the divisor used when abbreviating sizes.
	BaseForMetricPrefix float64 = 1024
)

// UserQuota is the coarse per-(user, storage-type) counter. Max is in
// SizeUnit units, Used in bytes.
type UserQuota struct {
	ID          int64       `json:"id" db:"id"`
	UserID      int64       `json:"user_id" db:"user_id"`
	StorageType StorageType `json:"storage_type" db:"storage_type"`
	MaxQuota    int64       `json:"max_quota" db:"max_quota"`
	Used        int64       `json:"used" db:"used"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// UserStorageQuota is the fine-grained per-(user, region) counter. Used never
// goes negative; drift is clamped, not surfaced.
type UserStorageQuota struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	RegionID  int64     `json:"region_id" db:"region_id"`
	MaxQuota  int64     `json:"max_quota" db:"max_quota"`
	Used      int64     `json:"used" db:"used"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// QuotaInfo is the read-side shape reported to both the internal signed
// endpoint and the browser-facing endpoint. Max is in bytes.
type QuotaInfo struct {
	Max  int64 `json:"max"`
	Used int64 `json:"used"`
}

// AbbreviateSize renders a byte count as (value, unit) for UI display.
func AbbreviateSize(size int64) (float64, string) {
	units := []string{"B", "KB", "MB", "GB", "TB"}

	value := float64(size)
	power := 0
	for value > BaseForMetricPrefix && power < len(units)-1 {
		value /= BaseForMetricPrefix
		power++
	}
	return value, units[power]
}
