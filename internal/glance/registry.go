package glance

import (
	"context"

	"github.com/vmcloud/glance/internal/model"
)

// Registry provides an interface for image metadata storage. The
// persistent and in-memory implementations are interchangeable and
// must behave identically; both are exercised by the same conformance
// tests. Implementations serialize access per record so concurrent
// updates never lose writes, and never recycle ids: destroyed records
// are soft-deleted and keep their id reserved forever.
type Registry interface {
	// Create materializes a new image record. The id is assigned from a
	// strictly increasing counter when values carries none; an explicit
	// id that collides with any record, deleted or not, fails with
	// DuplicateIDError. Status defaults to active and is validated
	// against the closed set. A supplied property map is normalized
	// into freshly timestamped entries.
	Create(ctx context.Context, values *model.ImageValues) (*model.Image, error)

	// Update resolves the record via Get (inheriting its NotFound
	// semantics) and replaces the supplied fields. A non-nil property
	// map replaces the whole collection; there is no partial merge. An
	// invalid status leaves the record untouched.
	Update(ctx context.Context, id int64, values *model.ImageValues) (*model.Image, error)

	// Destroy soft-deletes the record: deleted is set and deleted_at
	// stamped. The id stays reserved.
	Destroy(ctx context.Context, id int64) error

	// Get returns the record when exactly one non-deleted match exists,
	// NotFoundError otherwise.
	Get(ctx context.Context, id int64) (*model.Image, error)

	// ListPublic returns the non-deleted records whose is_public flag
	// equals the argument, ordered by id.
	ListPublic(ctx context.Context, isPublic bool) ([]*model.Image, error)

	// Close releases the underlying storage.
	Close() error
}
