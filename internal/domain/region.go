package domain

import (
	"encoding/json"
	"time"
)

// ProviderClass tells how a storage provider addresses its files.
type ProviderClass int

const (
	// BulkMount providers address files by stable internal node ids.
	BulkMount ProviderClass = iota
	// AddonMethod providers address files by materialized path under a
	// root folder id.
	AddonMethod
)

const BulkMountProvider = "osfstorage"

// Third-party storages integrated via provider-specific plugins.
var addonMethodProviders = map[string]bool{
	"nextcloudinstitutions": true,
	"s3compatinstitutions":  true,
	"ociinstitutions":       true,
	"onedrivebusiness":      true,
	"dropboxbusiness":       true,
}

// ClassifyProvider resolves the addressing scheme of a provider once, so the
// ledger never does string-membership checks itself.
func ClassifyProvider(provider string) ProviderClass {
	if addonMethodProviders[provider] {
		return AddonMethod
	}
	return BulkMount
}

func IsAddonMethodProvider(provider string) bool {
	return addonMethodProviders[provider]
}

// IsQuotaTrackedProvider reports whether file events for the provider are
// accounted at all.
func IsQuotaTrackedProvider(provider string) bool {
	return provider == BulkMountProvider || addonMethodProviders[provider]
}

// Region is one configured institutional storage backend.
type Region struct {
	ID            int64           `json:"id" db:"id"`
	InstitutionID int64           `json:"institution_id" db:"institution_id"`
	Name          string          `json:"name" db:"name"`
	Provider      string          `json:"provider" db:"provider"`
	BaseURL       string          `json:"base_url" db:"base_url"`
	Credentials   json.RawMessage `json:"-" db:"credentials"`
	IsDefault     bool            `json:"is_default" db:"is_default"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func (r *Region) ProviderClass() ProviderClass {
	return ClassifyProvider(r.Provider)
}

// Institution is the owning organization of regions and users.
type Institution struct {
	ID        int64     `json:"id" db:"id"`
	ExtID     string    `json:"ext_id" db:"ext_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
