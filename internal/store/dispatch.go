package store

import (
	"context"
	"fmt"
	"io"

	"github.com/vmcloud/glance/internal/glance"
)

// Dispatcher maps locator schemes to store backends. It is populated
// once at startup and shared read-only across requests afterwards;
// Register is not safe to call once the dispatcher is being read
// concurrently. New backend kinds plug in through Register without
// touching any dispatch call site.
type Dispatcher struct {
	backends       map[string]glance.Backend
	defaultScheme  string
	defaultBackend glance.WritableBackend
}

var _ glance.BackendDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{backends: make(map[string]glance.Backend)}
}

// Register installs b as the backend responsible for scheme,
// replacing any earlier registration.
func (d *Dispatcher) Register(scheme string, b glance.Backend) {
	d.backends[scheme] = b
}

// SetDefault marks the backend registered under scheme as the write
// target for Put. The backend must be writable.
func (d *Dispatcher) SetDefault(scheme string) error {
	b, ok := d.backends[scheme]
	if !ok {
		return &glance.UnsupportedSchemeError{Scheme: scheme}
	}
	w, ok := b.(glance.WritableBackend)
	if !ok {
		return fmt.Errorf("store backend for scheme %q is read-only", scheme)
	}
	d.defaultScheme = scheme
	d.defaultBackend = w
	return nil
}

// Get extracts the locator's scheme, looks up the responsible backend
// and delegates. An unregistered scheme fails with
// UnsupportedSchemeError.
func (d *Dispatcher) Get(ctx context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	scheme, err := schemeOf(locator)
	if err != nil {
		return nil, err
	}
	b, ok := d.backends[scheme]
	if !ok {
		return nil, &glance.UnsupportedSchemeError{Scheme: scheme}
	}
	return b.Get(ctx, locator, expectedSize)
}

// Put stores the bytes read from r under key in the default backend
// and returns the locator and the observed size.
func (d *Dispatcher) Put(ctx context.Context, key string, r io.Reader, size int64) (string, int64, error) {
	if d.defaultBackend == nil {
		return "", 0, fmt.Errorf("no writable default store configured")
	}
	return d.defaultBackend.Put(ctx, key, r, size)
}
