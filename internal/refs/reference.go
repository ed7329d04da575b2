// Package refs persists durable references to remote files, distinct from
// any cached byte copy of them.
package refs

import (
	"errors"
	"time"
)

// ErrNotFound is returned for an unknown reference id.
var ErrNotFound = errors.New("file reference not found")

// ErrSourceMissing marks a reference whose remote source is confirmed gone.
// Reads short-circuit to a lost-source response instead of retrying.
var ErrSourceMissing = errors.New("reference source is missing")

// FileReference is a durable pointer to a remote file. References created
// before URL-based sharing carry only a path plus credentials; sync migrates
// them in place (see Syncer.MigrateLegacy) and strips the credentials once a
// stable URL is known.
type FileReference struct {
	ID          string `json:"id"`
	RemotePath  string `json:"remote_path"`
	OwnerUserID string `json:"owner_user_id,omitempty"`

	// Opaque access credential pair, present only on legacy references.
	AccessKey    string `json:"access_key,omitempty"`
	AccessSecret string `json:"access_secret,omitempty"`

	// ResolvedURL is the durable public link once one is known.
	ResolvedURL string `json:"resolved_url,omitempty"`

	LastSync      time.Time `json:"last_sync,omitempty"`
	KnownSize     int64     `json:"known_size,omitempty"`
	MissingSource bool      `json:"missing_source,omitempty"`
}

// IsLegacy reports whether the reference still carries credentials instead
// of a durable URL.
func (r *FileReference) IsLegacy() bool {
	return r.ResolvedURL == "" && (r.AccessKey != "" || r.AccessSecret != "")
}

// StaleSince reports whether the reference has not been synced since the
// given cutoff.
func (r *FileReference) StaleSince(cutoff time.Time) bool {
	return r.LastSync.Before(cutoff)
}
