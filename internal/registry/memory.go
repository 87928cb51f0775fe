package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/vmcloud/glance/internal/glance"
	"github.com/vmcloud/glance/internal/model"
)

// MemoryRegistry is an in-memory implementation of glance.Registry.
// It behaves identically to the SQLite registry (soft deletes, id
// reservation, status validation) and is safe for concurrent use.
// Soft-deleted records stay in the map so their ids are never handed
// out again.
type MemoryRegistry struct {
	mu     sync.Mutex
	images map[int64]*model.Image
	nextID int64
	clock  glance.Clock
}

var _ glance.Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty in-memory registry. A nil clock
// uses the real time.
func NewMemoryRegistry(clock glance.Clock) *MemoryRegistry {
	if clock == nil {
		clock = glance.RealClock{}
	}
	return &MemoryRegistry{
		images: make(map[int64]*model.Image),
		nextID: 1,
		clock:  clock,
	}
}

func (r *MemoryRegistry) Create(_ context.Context, values *model.ImageValues) (*model.Image, error) {
	status := model.StatusActive
	if values.Status != nil {
		status = *values.Status
	}
	if !model.ValidStatus(status) {
		return nil, &glance.InvalidStatusError{Status: status}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id int64
	if values.ID != nil {
		id = *values.ID
		if _, exists := r.images[id]; exists {
			return nil, &glance.DuplicateIDError{ID: id}
		}
		if id >= r.nextID {
			r.nextID = id + 1
		}
	} else {
		id = r.nextID
		r.nextID++
	}

	now := r.clock.Now().UTC()
	img := &model.Image{
		ID:         id,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
		Properties: normalizeProperties(values.Properties, now),
	}
	if values.Name != nil {
		img.Name = *values.Name
	}
	if values.Type != nil {
		img.Type = *values.Type
	}
	if values.IsPublic != nil {
		img.IsPublic = *values.IsPublic
	}
	if values.Size != nil {
		img.Size = *values.Size
	}
	if values.Location != nil {
		img.Location = *values.Location
	}

	r.images[id] = img
	return cloneImage(img), nil
}

func (r *MemoryRegistry) Update(_ context.Context, id int64, values *model.ImageValues) (*model.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}

	// Validate before touching anything so a rejected update leaves
	// the record unmodified.
	if values.Status != nil && !model.ValidStatus(*values.Status) {
		return nil, &glance.InvalidStatusError{Status: *values.Status}
	}

	now := r.clock.Now().UTC()
	if values.Name != nil {
		img.Name = *values.Name
	}
	if values.Status != nil {
		img.Status = *values.Status
	}
	if values.Type != nil {
		img.Type = *values.Type
	}
	if values.IsPublic != nil {
		img.IsPublic = *values.IsPublic
	}
	if values.Size != nil {
		img.Size = *values.Size
	}
	if values.Location != nil {
		img.Location = *values.Location
	}
	if values.Properties != nil {
		img.Properties = normalizeProperties(values.Properties, now)
	}
	img.UpdatedAt = now

	return cloneImage(img), nil
}

func (r *MemoryRegistry) Destroy(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, err := r.getLocked(id)
	if err != nil {
		return err
	}

	now := r.clock.Now().UTC()
	img.Deleted = true
	img.DeletedAt = &now
	img.UpdatedAt = now
	for i := range img.Properties {
		img.Properties[i].Deleted = true
		img.Properties[i].DeletedAt = &now
	}
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id int64) (*model.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}
	return cloneImage(img), nil
}

func (r *MemoryRegistry) ListPublic(_ context.Context, isPublic bool) ([]*model.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Image
	for _, img := range r.images {
		if img.Deleted || img.IsPublic != isPublic {
			continue
		}
		out = append(out, cloneImage(img))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRegistry) Close() error { return nil }

// getLocked returns the live record for id. Callers hold r.mu.
func (r *MemoryRegistry) getLocked(id int64) (*model.Image, error) {
	img, ok := r.images[id]
	if !ok || img.Deleted {
		return nil, &glance.NotFoundError{ID: id}
	}
	return img, nil
}
