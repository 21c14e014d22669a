package domain

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// EventType identifies a file-lifecycle event.
type EventType string

const (
	FileAdded   EventType = "file_added"
	FileRemoved EventType = "file_removed"
	FileUpdated EventType = "file_updated"
	FileMoved   EventType = "addon_file_moved"
	FileCopied  EventType = "addon_file_copied"
	FileRenamed EventType = "addon_file_renamed"
)

const ActionCreateFolder = "create_folder"

// FileMetadata describes the file or folder the event is about.
type FileMetadata struct {
	Path         string         `json:"path"`
	Materialized string         `json:"materialized"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Size         *int64         `json:"size,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// FileRef is the source or destination block of a move/copy event. Folders
// carry a nested children tree instead of a flat size.
type FileRef struct {
	Provider     string    `json:"provider"`
	Path         string    `json:"path"`
	Materialized string    `json:"materialized"`
	RootPath     string    `json:"root_path,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	NodeGUID     string    `json:"nid,omitempty"`
	OldRootID    string    `json:"old_root_id,omitempty"`
	Size         *int64    `json:"size,omitempty"`
	Children     []FileRef `json:"children,omitempty"`
}

// TreeSize sums file sizes over a nested children tree.
func (r *FileRef) TreeSize() int64 {
	return lo.SumBy(r.Children, func(child FileRef) int64 {
		if child.Kind == KindFile {
			if child.Size != nil {
				return *child.Size
			}
			return 0
		}
		return child.TreeSize()
	})
}

// FileEventPayload mirrors the payload the storage-operation subsystem sends
// after a successful file operation.
type FileEventPayload struct {
	Provider    string       `json:"provider"`
	Metadata    FileMetadata `json:"metadata"`
	Source      *FileRef     `json:"source,omitempty"`
	Destination *FileRef     `json:"destination,omitempty"`
	RootPath    string       `json:"root_path,omitempty"`
	Action      string       `json:"action,omitempty"`
}

// FileEvent is the direct-call contract between the storage subsystem and the
// quota ledger. Accounting is best-effort: a failed update must never break
// the file operation that triggered it.
type FileEvent struct {
	ID          uuid.UUID        `json:"id"`
	Type        EventType        `json:"event_type"`
	ProjectGUID string           `json:"target"`
	UserGUID    string           `json:"user"`
	Payload     FileEventPayload `json:"payload"`
}

// Provider returns the event's provider, falling back to the destination
// block for move/copy payloads.
func (e *FileEvent) Provider() string {
	if e.Payload.Provider != "" {
		return e.Payload.Provider
	}
	if e.Payload.Destination != nil {
		return e.Payload.Destination.Provider
	}
	return ""
}

// Kind returns the event's kind, falling back to the destination block.
func (e *FileEvent) Kind() string {
	if e.Payload.Metadata.Kind != "" {
		return e.Payload.Metadata.Kind
	}
	if e.Payload.Destination != nil {
		return e.Payload.Destination.Kind
	}
	return ""
}
