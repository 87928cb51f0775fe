package store

import (
	"fmt"

	"github.com/vmcloud/glance/internal/config"
	"github.com/vmcloud/glance/internal/glance"
)

// NewBackendFromConfig creates a store backend based on the store
// config type. The encryptor applies only to the filesystem store;
// network stores move bytes as-is.
func NewBackendFromConfig(cfg config.StoreConfig, enc glance.Encryptor) (glance.Backend, error) {
	switch cfg.Type {
	case "file":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		return NewFilesystemBackend(cfg.Root, cfg.ChunkSize, enc)
	case "http":
		return NewHTTPBackend(nil, cfg.ChunkSize), nil
	case "s3":
		return NewS3Backend(S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			ChunkSize: cfg.ChunkSize,
		}), nil
	case "swift":
		return NewSwiftBackend(nil, SwiftConfig{
			AuthURL:   cfg.SwiftAuthURL,
			User:      cfg.SwiftUser,
			Key:       cfg.SwiftKey,
			Container: cfg.SwiftContainer,
			ChunkSize: cfg.ChunkSize,
		}), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

// NewDispatcherFromConfig builds the scheme dispatch table from
// config. The http store answers for both http and https locators.
// The default_store scheme selects the write target; it must name one
// of the configured, writable stores.
func NewDispatcherFromConfig(cfg *config.Config, enc glance.Encryptor) (*Dispatcher, error) {
	d := NewDispatcher()

	for _, sc := range cfg.Stores {
		b, err := NewBackendFromConfig(sc, enc)
		if err != nil {
			return nil, fmt.Errorf("creating %s store: %w", sc.Type, err)
		}
		d.Register(sc.Type, b)
		if sc.Type == "http" {
			d.Register("https", b)
		}
	}

	if cfg.DefaultStore != "" {
		if err := d.SetDefault(cfg.DefaultStore); err != nil {
			return nil, fmt.Errorf("configuring default store %q: %w", cfg.DefaultStore, err)
		}
	}

	return d, nil
}
