package manifest

import (
	"time"
)

// Status is the synchronization status recorded for a tracked document.
type Status string

const (
	StatusSynced     Status = "synced"
	StatusModified   Status = "modified"
	StatusConflicted Status = "conflicted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSynced, StatusModified, StatusConflicted:
		return true
	}
	return false
}

// Resolution records one conflict resolution applied to a document.
type Resolution struct {
	Timestamp          time.Time `json:"timestamp"`
	Strategy           string    `json:"strategy"`
	PreviousLocalHash  string    `json:"previous_local_hash"`
	PreviousRemoteHash string    `json:"previous_remote_hash"`
	// RemoteVersion is the remote version the resolution was made against.
	RemoteVersion int64 `json:"remote_version,omitempty"`
}

// Document is one remotely hosted document known to the manifest, with the
// baseline (Version, ContentHash) recorded at its last successful sync.
type Document struct {
	ID                string       `json:"id"`
	ParentID          string       `json:"parent_id,omitempty"`
	Title             string       `json:"title"`
	Version           int64        `json:"version"`
	ContentHash       string       `json:"content_hash"`
	LocalPath         string       `json:"local_path"`
	Status            Status       `json:"status"`
	LastModified      time.Time    `json:"last_modified"`
	ResolutionHistory []Resolution `json:"resolution_history,omitempty"`
}

// Clone returns a deep copy so callers never share memory with the store's cache.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.ResolutionHistory != nil {
		c.ResolutionHistory = make([]Resolution, len(d.ResolutionHistory))
		copy(c.ResolutionHistory, d.ResolutionHistory)
	}
	return &c
}

// File is the persisted layout of manifest.json.
type File struct {
	SchemaVersion int         `json:"schema_version"`
	RemoteBaseURL string      `json:"remote_base_url"`
	LastSyncTime  *time.Time  `json:"last_sync_time,omitempty"`
	Documents     []*Document `json:"documents"`
}
