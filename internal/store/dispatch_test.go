package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vmcloud/glance/internal/glance"
	"github.com/vmcloud/glance/internal/testutil"
)

func TestDispatcher_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by scheme", func(t *testing.T) {
		d := NewDispatcher()
		fileBackend := &testutil.StubBackend{Data: []byte("file data")}
		httpBackend := &testutil.StubBackend{Data: []byte("http data")}
		d.Register("file", fileBackend)
		d.Register("http", httpBackend)

		s, err := d.Get(ctx, "http://example.com/teapot", -1)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		s.Close()

		if len(httpBackend.GetCalls) != 1 || httpBackend.GetCalls[0] != "http://example.com/teapot" {
			t.Errorf("http backend calls = %v", httpBackend.GetCalls)
		}
		if len(fileBackend.GetCalls) != 0 {
			t.Errorf("file backend unexpectedly called: %v", fileBackend.GetCalls)
		}
	})

	t.Run("unregistered scheme", func(t *testing.T) {
		d := NewDispatcher()
		d.Register("file", &testutil.StubBackend{})

		_, err := d.Get(ctx, "ftp://example.com/pub/2", -1)
		var unsupported *glance.UnsupportedSchemeError
		if !errors.As(err, &unsupported) {
			t.Fatalf("Get() error = %v, want UnsupportedSchemeError", err)
		}
		if unsupported.Scheme != "ftp" {
			t.Errorf("Scheme = %q, want ftp", unsupported.Scheme)
		}
	})

	t.Run("registering a scheme makes it servable", func(t *testing.T) {
		d := NewDispatcher()

		if _, err := d.Get(ctx, "ftp://example.com/pub/2", -1); err == nil {
			t.Fatal("Get() before registration succeeded, want error")
		}

		d.Register("ftp", &testutil.StubBackend{Data: []byte("pub data")})
		s, err := d.Get(ctx, "ftp://example.com/pub/2", -1)
		if err != nil {
			t.Fatalf("Get() after registration error = %v", err)
		}
		s.Close()
	})

	t.Run("malformed locator", func(t *testing.T) {
		d := NewDispatcher()
		_, err := d.Get(ctx, "no-scheme-here", -1)
		var invalid *glance.InvalidLocatorError
		if !errors.As(err, &invalid) {
			t.Fatalf("Get() error = %v, want InvalidLocatorError", err)
		}
	})
}

func TestDispatcher_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("writes through the default backend", func(t *testing.T) {
		d := NewDispatcher()
		backend := testutil.NewRecordingBackend()
		d.Register("stub", backend)
		if err := d.SetDefault("stub"); err != nil {
			t.Fatalf("SetDefault() error = %v", err)
		}

		location, n, err := d.Put(ctx, "2", strings.NewReader("teapot"), 6)
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if location != "stub://2" {
			t.Errorf("location = %q, want stub://2", location)
		}
		if n != 6 {
			t.Errorf("written = %d, want 6", n)
		}
		if !bytes.Equal(backend.Puts["2"], []byte("teapot")) {
			t.Errorf("stored bytes = %q, want teapot", backend.Puts["2"])
		}
	})

	t.Run("no default configured", func(t *testing.T) {
		d := NewDispatcher()
		d.Register("stub", testutil.NewRecordingBackend())

		_, _, err := d.Put(ctx, "2", strings.NewReader("teapot"), 6)
		if err == nil {
			t.Fatal("Put() without default succeeded, want error")
		}
	})
}

func TestDispatcher_SetDefault(t *testing.T) {
	t.Run("unregistered scheme", func(t *testing.T) {
		d := NewDispatcher()
		err := d.SetDefault("s3")
		var unsupported *glance.UnsupportedSchemeError
		if !errors.As(err, &unsupported) {
			t.Fatalf("SetDefault() error = %v, want UnsupportedSchemeError", err)
		}
	})

	t.Run("read-only backend", func(t *testing.T) {
		d := NewDispatcher()
		d.Register("http", &testutil.StubBackend{})

		if err := d.SetDefault("http"); err == nil {
			t.Fatal("SetDefault() on read-only backend succeeded, want error")
		}
	})
}
