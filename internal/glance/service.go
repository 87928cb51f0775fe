package glance

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/vmcloud/glance/internal/model"
)

// ImageService is the single entry point callers use to work with
// images. It coordinates the metadata registry and the store backend
// dispatcher: metadata resolves where the bytes live, the dispatcher
// moves them. An HTTP layer or CLI sits on top of this facade and
// never talks to the two stores directly.
type ImageService struct {
	registry Registry
	store    BackendDispatcher
	logger   Logger
	clock    Clock
}

// NewImageService creates an ImageService with the provided
// dependencies.
func NewImageService(registry Registry, store BackendDispatcher, logger Logger, clock Clock) *ImageService {
	return &ImageService{
		registry: registry,
		store:    store,
		logger:   logger,
		clock:    clock,
	}
}

// GetImage returns the metadata record for an image.
func (s *ImageService) GetImage(ctx context.Context, id int64) (*model.Image, error) {
	return s.registry.Get(ctx, id)
}

// FetchImage resolves an image's location through the registry and
// opens its data as a chunk stream from the responsible backend. The
// caller must close the stream. Fails fast with NotFoundError when the
// record is absent or deleted.
func (s *ImageService) FetchImage(ctx context.Context, id int64) (*model.Image, ChunkStream, error) {
	img, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if img.Location == "" {
		return nil, nil, fmt.Errorf("image %d has no stored data (status %s)", id, img.Status)
	}

	// Records registered with a pre-existing location may carry no
	// size. Zero means unknown there, so skip the size check rather
	// than reject every byte of a valid read.
	expected := img.Size
	if expected == 0 {
		expected = -1
	}

	stream, err := s.store.Get(ctx, img.Location, expected)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug("image data opened", "id", img.ID, "location", img.Location, "size", img.Size)
	return img, stream, nil
}

// AddImage creates an image record and, when data is non-nil, streams
// the bytes to the default store backend. The record is created as
// queued, which reserves its id before any data moves, flipped to saving
// for the duration of the write, and committed with the final location
// and observed size as active only after the backend write finished.
// Metadata never references a location that is still being written.
// A failed write marks the record killed and returns the store error.
//
// With nil data this is a plain metadata registration: the supplied
// values (location included) are stored as-is with the registry's own
// defaulting.
func (s *ImageService) AddImage(ctx context.Context, values *model.ImageValues, data io.Reader) (*model.Image, error) {
	if data == nil {
		return s.registry.Create(ctx, values)
	}

	v := *values
	queued := model.StatusQueued
	v.Status = &queued
	v.Location = nil

	img, err := s.registry.Create(ctx, &v)
	if err != nil {
		return nil, err
	}

	saving := model.StatusSaving
	if _, err := s.registry.Update(ctx, img.ID, &model.ImageValues{Status: &saving}); err != nil {
		return nil, err
	}

	expected := int64(-1)
	if values.Size != nil {
		expected = *values.Size
	}

	location, written, err := s.store.Put(ctx, strconv.FormatInt(img.ID, 10), data, expected)
	if err != nil {
		killed := model.StatusKilled
		if _, uerr := s.registry.Update(ctx, img.ID, &model.ImageValues{Status: &killed}); uerr != nil {
			s.logger.Error("marking failed image killed", "id", img.ID, "error", uerr)
		}
		s.logger.Error("image data write failed", "id", img.ID, "error", err)
		return nil, fmt.Errorf("storing image %d data: %w", img.ID, err)
	}

	active := model.StatusActive
	final, err := s.registry.Update(ctx, img.ID, &model.ImageValues{
		Status:   &active,
		Location: &location,
		Size:     &written,
	})
	if err != nil {
		return nil, fmt.Errorf("finalizing image %d metadata: %w", img.ID, err)
	}

	s.logger.Info("image stored", "id", final.ID, "location", location, "size", written)
	return final, nil
}

// UpdateImage replaces the supplied metadata fields on an image.
func (s *ImageService) UpdateImage(ctx context.Context, id int64, values *model.ImageValues) (*model.Image, error) {
	img, err := s.registry.Update(ctx, id, values)
	if err != nil {
		return nil, err
	}
	s.logger.Info("image updated", "id", id)
	return img, nil
}

// DeleteImage soft-deletes an image record. The stored bytes are left
// in place; scavenging unreferenced objects belongs to an outer layer.
func (s *ImageService) DeleteImage(ctx context.Context, id int64) error {
	if err := s.registry.Destroy(ctx, id); err != nil {
		return err
	}
	s.logger.Info("image deleted", "id", id)
	return nil
}

// ListPublic returns the non-deleted images with the given visibility.
func (s *ImageService) ListPublic(ctx context.Context, isPublic bool) ([]*model.Image, error) {
	return s.registry.ListPublic(ctx, isPublic)
}
