package domain

import "time"

const (
	KindFile   = "file"
	KindFolder = "folder"
)

// FileNode is a file or folder entry persisted by the storage subsystem.
// Bulk-mount nodes are addressed by ExternalID, addon-method nodes by
// MaterializedPath. The quota engine only reads these rows.
type FileNode struct {
	ID               int64      `json:"id" db:"id"`
	ExternalID       string     `json:"external_id" db:"external_id"`
	ProjectID        int64      `json:"project_id" db:"project_id"`
	Provider         string     `json:"provider" db:"provider"`
	Kind             string     `json:"kind" db:"kind"`
	Name             string     `json:"name" db:"name"`
	Path             string     `json:"path" db:"path"`
	MaterializedPath string     `json:"materialized_path" db:"materialized_path"`
	ParentID         *int64     `json:"parent_id,omitempty" db:"parent_id"`
	DeletedOn        *time.Time `json:"deleted_on,omitempty" db:"deleted_on"`
	DeletedByID      *int64     `json:"deleted_by_id,omitempty" db:"deleted_by_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

func (n *FileNode) IsFile() bool   { return n.Kind == KindFile }
func (n *FileNode) IsFolder() bool { return n.Kind == KindFolder }
func (n *FileNode) IsTrashed() bool {
	return n.DeletedOn != nil
}

// FileInfo is the per-file last-known byte size. Absence for an existing file
// node is a data-integrity error the ledger logs and skips, never doubles.
type FileInfo struct {
	ID         int64     `json:"id" db:"id"`
	FileNodeID int64     `json:"file_node_id" db:"file_node_id"`
	FileSize   int64     `json:"file_size" db:"file_size"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
