package domain

import "time"

// StorageType is the counter family a project's files are accounted under.
type StorageType int

const (
	// StorageTypeDefault is the NII/system storage.
	StorageTypeDefault StorageType = 1
	// StorageTypeCustom is institution-assigned storage.
	StorageTypeCustom StorageType = 2
)

func (t StorageType) String() string {
	switch t {
	case StorageTypeDefault:
		return "default"
	case StorageTypeCustom:
		return "custom"
	}
	return "unknown"
}

const (
	ProjectTypeDefault    = "project"
	ProjectTypeQuickFiles = "quickfiles"
)

// Project is the unit of ownership for file nodes. RegionID is the assigned
// bulk-mount region; addon-method regions are resolved through the creator's
// institution instead.
type Project struct {
	ID            int64      `json:"id" db:"id"`
	GUID          string     `json:"guid" db:"guid"`
	Title         string     `json:"title" db:"title"`
	Type          string     `json:"type" db:"type"`
	CreatorID     int64      `json:"creator_id" db:"creator_id"`
	InstitutionID *int64     `json:"institution_id,omitempty" db:"institution_id"`
	RegionID      *int64     `json:"region_id,omitempty" db:"region_id"`
	ForkedFromID  *int64     `json:"forked_from_id,omitempty" db:"forked_from_id"`
	IsDeleted     bool       `json:"is_deleted" db:"is_deleted"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// User is the acting/owning user of quota rows.
type User struct {
	ID            int64     `json:"id" db:"id"`
	GUID          string    `json:"guid" db:"guid"`
	InstitutionID *int64    `json:"institution_id,omitempty" db:"institution_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
