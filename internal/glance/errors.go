package glance

import (
	"fmt"

	"github.com/vmcloud/glance/internal/model"
)

// The error types below form the taxonomy surfaced to callers. All of
// them are recoverable by the caller; none is retried internally. Use
// errors.As to classify an error from any layer.

// NotFoundError reports that an image record or a stored object does
// not exist (or is soft-deleted, which is indistinguishable from
// absence to callers).
type NotFoundError struct {
	ID      int64  // image id, when the lookup was by id
	Locator string // store URI, when the lookup was by location
}

func (e *NotFoundError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("no object found at %s", e.Locator)
	}
	return fmt.Sprintf("image %d not found", e.ID)
}

// DuplicateIDError reports an id collision on create. Ids are never
// recycled, so a collision with a soft-deleted record also fails.
type DuplicateIDError struct {
	ID int64
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate image id %d", e.ID)
}

// InvalidStatusError reports a status value outside the closed set.
type InvalidStatusError struct {
	Status model.Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid image status %q", string(e.Status))
}

// InvalidLocatorError reports a store URI the responsible backend
// cannot fully decompose into its scheme's fields.
type InvalidLocatorError struct {
	Locator string
	Reason  string
}

func (e *InvalidLocatorError) Error() string {
	return fmt.Sprintf("invalid store locator %q: %s", e.Locator, e.Reason)
}

// UnsupportedSchemeError reports a locator whose scheme has no
// registered backend.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("no store backend registered for scheme %q", e.Scheme)
}

// TransportError reports an I/O failure while talking to a store
// backend. It wraps the underlying cause. When it surfaces mid-stream,
// chunks already delivered are not retracted: the caller must treat
// the whole transfer as failed.
type TransportError struct {
	Locator string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("store transport failure for %s: %v", e.Locator, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SizeMismatchError reports that the byte count delivered by a backend
// differs from the size the caller expected. It is raised at stream
// exhaustion, never by silent truncation.
type SizeMismatchError struct {
	Locator  string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s: expected %d bytes, got %d", e.Locator, e.Expected, e.Actual)
}
