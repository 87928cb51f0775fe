package model

import "time"

// Status is the lifecycle state of an image. The set is closed: any
// other value is rejected by the registry with InvalidStatusError.
type Status string

const (
	StatusQueued Status = "queued" // record exists, no data stored yet
	StatusSaving Status = "saving" // data is being written to a store backend
	StatusActive Status = "active" // data stored, image usable
	StatusKilled Status = "killed" // data write failed, record kept for the id
)

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s Status) bool {
	switch s {
	case StatusQueued, StatusSaving, StatusActive, StatusKilled:
		return true
	}
	return false
}

// Image is a metadata record for stored image data. The record is
// independent of where the bytes live: Location is an opaque store URI
// resolved through the backend dispatcher at read time.
type Image struct {
	ID         int64
	Name       string
	Status     Status
	Type       string // image kind tag, e.g. "kernel", "ramdisk", "machine"
	IsPublic   bool
	Size       int64  // data size in bytes
	Location   string // store URI, empty until data is stored
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
	Deleted    bool
	Properties []Property
}

// Property is a free-form key/value entry attached to an image.
// Properties are versioned by replacement: an update supplying a
// property map replaces the whole collection with freshly stamped
// entries rather than mutating entries in place.
type Property struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool
}

// ImageValues carries the caller-supplied fields for a create or
// update. Nil pointer fields are absent: on create they take the
// documented defaults, on update they leave the stored value
// unchanged. A nil Properties map leaves the property collection
// untouched; a non-nil map (empty included) replaces it wholesale.
type ImageValues struct {
	ID         *int64
	Name       *string
	Status     *Status
	Type       *string
	IsPublic   *bool
	Size       *int64
	Location   *string
	Properties map[string]string
}
