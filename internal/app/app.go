package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/vmcloud/glance/internal/config"
	"github.com/vmcloud/glance/internal/encryption"
	"github.com/vmcloud/glance/internal/glance"
	"github.com/vmcloud/glance/internal/model"
	"github.com/vmcloud/glance/internal/registry"
	"github.com/vmcloud/glance/internal/store"
)

// GlanceApp is the application layer between the CLI and ImageService.
// It constructs all dependencies from config, exposes high-level
// operations, and manages the registry lifecycle on Close.
type GlanceApp struct {
	cfg      *config.Config
	registry glance.Registry
	store    *store.Dispatcher
	service  *glance.ImageService
	logFile  *os.File
}

// NewGlanceApp creates a fully wired GlanceApp from the given config.
// operation identifies the CLI command being run (e.g. "AddImage",
// "FetchImage"). The caller must call Close when done.
func NewGlanceApp(cfg *config.Config, operation string) (*GlanceApp, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	dispatcher, err := store.NewDispatcherFromConfig(cfg, enc)
	if err != nil {
		return nil, fmt.Errorf("creating store dispatcher: %w", err)
	}

	reg, err := registry.NewRegistryFromConfig(cfg.Registry, glance.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("creating registry: %w", err)
	}

	opID := uuid.NewString()[:8]
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("operation", operation)

	svc := glance.NewImageService(reg, dispatcher, &slogAdapter{l: logger}, glance.RealClock{})

	return &GlanceApp{
		cfg:      cfg,
		registry: reg,
		store:    dispatcher,
		service:  svc,
		logFile:  logFile,
	}, nil
}

// AddImage creates an image record and, when dataPath is non-empty,
// streams the file's bytes to the default store backend. An empty
// dataPath registers metadata only.
func (a *GlanceApp) AddImage(ctx context.Context, values *model.ImageValues, dataPath string) (*model.Image, error) {
	var data io.Reader
	if dataPath != "" {
		f, err := os.Open(dataPath)
		if err != nil {
			return nil, fmt.Errorf("opening image data: %w", err)
		}
		defer f.Close()

		if values.Size == nil {
			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("stat image data: %w", err)
			}
			size := info.Size()
			values.Size = &size
		}
		data = f
	}
	return a.service.AddImage(ctx, values, data)
}

// GetImage returns the metadata record for an image.
func (a *GlanceApp) GetImage(ctx context.Context, id int64) (*model.Image, error) {
	return a.service.GetImage(ctx, id)
}

// FetchImage streams an image's stored bytes to w.
// Returns the image metadata and the number of bytes written.
func (a *GlanceApp) FetchImage(ctx context.Context, id int64, w io.Writer) (*model.Image, int64, error) {
	img, stream, err := a.service.FetchImage(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	n, err := glance.CopyStream(w, stream)
	if err != nil {
		return nil, n, fmt.Errorf("fetching image %d data: %w", id, err)
	}
	return img, n, nil
}

// UpdateImage replaces the supplied metadata fields on an image.
func (a *GlanceApp) UpdateImage(ctx context.Context, id int64, values *model.ImageValues) (*model.Image, error) {
	return a.service.UpdateImage(ctx, id, values)
}

// DeleteImage soft-deletes an image record.
func (a *GlanceApp) DeleteImage(ctx context.Context, id int64) error {
	return a.service.DeleteImage(ctx, id)
}

// ListImages returns the non-deleted images with the given visibility.
func (a *GlanceApp) ListImages(ctx context.Context, isPublic bool) ([]*model.Image, error) {
	return a.service.ListPublic(ctx, isPublic)
}

// Close releases the registry connection and the log file.
func (a *GlanceApp) Close() error {
	var firstErr error

	if err := a.registry.Close(); err != nil {
		firstErr = fmt.Errorf("closing registry: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
