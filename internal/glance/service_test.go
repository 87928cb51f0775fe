package glance_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vmcloud/glance/internal/glance"
	"github.com/vmcloud/glance/internal/model"
	"github.com/vmcloud/glance/internal/registry"
	"github.com/vmcloud/glance/internal/store"
	"github.com/vmcloud/glance/internal/testutil"
)

// recordingRegistry wraps a Registry and records the status carried by
// each Create and Update, so tests can assert the write lifecycle.
type recordingRegistry struct {
	glance.Registry
	statuses []model.Status
}

func (r *recordingRegistry) Create(ctx context.Context, values *model.ImageValues) (*model.Image, error) {
	img, err := r.Registry.Create(ctx, values)
	if err == nil {
		r.statuses = append(r.statuses, img.Status)
	}
	return img, err
}

func (r *recordingRegistry) Update(ctx context.Context, id int64, values *model.ImageValues) (*model.Image, error) {
	img, err := r.Registry.Update(ctx, id, values)
	if err == nil && values.Status != nil {
		r.statuses = append(r.statuses, *values.Status)
	}
	return img, err
}

type serviceFixture struct {
	registry *recordingRegistry
	backend  *testutil.RecordingBackend
	service  *glance.ImageService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	reg := &recordingRegistry{Registry: registry.NewMemoryRegistry(testutil.FixedClock())}
	backend := testutil.NewRecordingBackend()

	d := store.NewDispatcher()
	d.Register("stub", backend)
	if err := d.SetDefault("stub"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}

	svc := glance.NewImageService(reg, d, glance.NewNopLogger(), testutil.FixedClock())
	return &serviceFixture{registry: reg, backend: backend, service: svc}
}

func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func TestImageService_AddImage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores data and activates the record", func(t *testing.T) {
		f := newServiceFixture(t)
		data := "I am a teapot, short and stout\n"

		img, err := f.service.AddImage(ctx, &model.ImageValues{
			Name: strPtr("fake image #2"),
			Size: int64Ptr(int64(len(data))),
		}, strings.NewReader(data))
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}

		if img.Status != model.StatusActive {
			t.Errorf("Status = %q, want %q", img.Status, model.StatusActive)
		}
		if img.Location != "stub://1" {
			t.Errorf("Location = %q, want stub://1", img.Location)
		}
		if img.Size != int64(len(data)) {
			t.Errorf("Size = %d, want %d", img.Size, len(data))
		}
		if got := f.backend.Puts["1"]; !bytes.Equal(got, []byte(data)) {
			t.Errorf("stored bytes = %q, want %q", got, data)
		}

		want := []model.Status{model.StatusQueued, model.StatusSaving, model.StatusActive}
		if len(f.registry.statuses) != len(want) {
			t.Fatalf("status transitions = %v, want %v", f.registry.statuses, want)
		}
		for i := range want {
			if f.registry.statuses[i] != want[i] {
				t.Errorf("transition %d = %q, want %q", i, f.registry.statuses[i], want[i])
			}
		}
	})

	t.Run("marks the record killed when the store write fails", func(t *testing.T) {
		f := newServiceFixture(t)
		f.backend.PutErr = errors.New("disk full")

		_, err := f.service.AddImage(ctx, &model.ImageValues{Name: strPtr("x")},
			strings.NewReader("data"))
		if err == nil {
			t.Fatal("AddImage() succeeded, want error")
		}

		images, err := f.registry.ListPublic(ctx, false)
		if err != nil {
			t.Fatalf("ListPublic() error = %v", err)
		}
		if len(images) != 1 {
			t.Fatalf("got %d records, want 1 (killed record kept)", len(images))
		}
		if images[0].Status != model.StatusKilled {
			t.Errorf("Status = %q, want %q", images[0].Status, model.StatusKilled)
		}
		if images[0].Location != "" {
			t.Errorf("Location = %q, want empty after failed write", images[0].Location)
		}
	})

	t.Run("registers metadata only with nil data", func(t *testing.T) {
		f := newServiceFixture(t)

		img, err := f.service.AddImage(ctx, &model.ImageValues{
			Name:     strPtr("remote image"),
			Location: strPtr("http://example.com/teapot"),
			Size:     int64Ptr(31),
		}, nil)
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}

		if img.Status != model.StatusActive {
			t.Errorf("Status = %q, want %q", img.Status, model.StatusActive)
		}
		if img.Location != "http://example.com/teapot" {
			t.Errorf("Location = %q, want supplied locator", img.Location)
		}
		if len(f.backend.Puts) != 0 {
			t.Errorf("store written to: %v", f.backend.Puts)
		}
	})
}

func TestImageService_FetchImage(t *testing.T) {
	ctx := context.Background()

	t.Run("streams stored bytes", func(t *testing.T) {
		f := newServiceFixture(t)
		data := "I am a teapot, short and stout\n"

		created, err := f.service.AddImage(ctx, &model.ImageValues{
			Name: strPtr("x"),
			Size: int64Ptr(int64(len(data))),
		}, strings.NewReader(data))
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}

		img, stream, err := f.service.FetchImage(ctx, created.ID)
		if err != nil {
			t.Fatalf("FetchImage() error = %v", err)
		}
		if img.ID != created.ID {
			t.Errorf("metadata id = %d, want %d", img.ID, created.ID)
		}

		var buf bytes.Buffer
		n, err := glance.CopyStream(&buf, stream)
		if err != nil {
			t.Fatalf("CopyStream() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("fetched = %q, want %q", buf.String(), data)
		}
		if n != int64(len(data)) {
			t.Errorf("copied = %d, want %d", n, len(data))
		}
	})

	t.Run("unknown image fails before touching the store", func(t *testing.T) {
		f := newServiceFixture(t)

		_, _, err := f.service.FetchImage(ctx, 1234)
		var notFound *glance.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("FetchImage() error = %v, want NotFoundError", err)
		}
		if len(f.backend.GetCalls) != 0 {
			t.Errorf("store contacted for unknown image: %v", f.backend.GetCalls)
		}
	})

	t.Run("passes the record size to the store", func(t *testing.T) {
		f := newServiceFixture(t)
		data := "I am a teapot, short and stout\n"

		created, err := f.service.AddImage(ctx, &model.ImageValues{
			Name: strPtr("x"),
			Size: int64Ptr(int64(len(data))),
		}, strings.NewReader(data))
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}

		if _, stream, err := f.service.FetchImage(ctx, created.ID); err != nil {
			t.Fatalf("FetchImage() error = %v", err)
		} else {
			stream.Close()
		}

		if len(f.backend.GetSizes) != 1 || f.backend.GetSizes[0] != int64(len(data)) {
			t.Errorf("expected sizes passed to store = %v, want [%d]", f.backend.GetSizes, len(data))
		}
	})

	t.Run("location-only record with no size", func(t *testing.T) {
		f := newServiceFixture(t)
		data := "I am a teapot, short and stout\n"
		f.backend.Puts["7"] = []byte(data)

		// Registered against an existing object without declaring its
		// size. The fetch must not treat the zero as a size to enforce.
		created, err := f.service.AddImage(ctx, &model.ImageValues{
			Name:     strPtr("pre-stored"),
			Location: strPtr("stub://7"),
		}, nil)
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}

		_, stream, err := f.service.FetchImage(ctx, created.ID)
		if err != nil {
			t.Fatalf("FetchImage() error = %v", err)
		}

		var buf bytes.Buffer
		if _, err := glance.CopyStream(&buf, stream); err != nil {
			t.Fatalf("CopyStream() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("fetched = %q, want %q", buf.String(), data)
		}
		if len(f.backend.GetSizes) != 1 || f.backend.GetSizes[0] != -1 {
			t.Errorf("expected sizes passed to store = %v, want [-1]", f.backend.GetSizes)
		}
	})

	t.Run("image without data", func(t *testing.T) {
		f := newServiceFixture(t)

		created, err := f.service.AddImage(ctx, &model.ImageValues{Name: strPtr("x")}, nil)
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}

		if _, _, err := f.service.FetchImage(ctx, created.ID); err == nil {
			t.Fatal("FetchImage() for image without location succeeded, want error")
		}
	})
}

func TestImageService_DeleteImage(t *testing.T) {
	ctx := context.Background()

	f := newServiceFixture(t)
	created, err := f.service.AddImage(ctx, &model.ImageValues{Name: strPtr("x")}, nil)
	if err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}

	if err := f.service.DeleteImage(ctx, created.ID); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}

	_, err = f.service.GetImage(ctx, created.ID)
	var notFound *glance.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("GetImage() after delete error = %v, want NotFoundError", err)
	}

	err = f.service.DeleteImage(ctx, created.ID)
	if !errors.As(err, &notFound) {
		t.Fatalf("second DeleteImage() error = %v, want NotFoundError", err)
	}
}

func TestImageService_UpdateImage(t *testing.T) {
	ctx := context.Background()

	f := newServiceFixture(t)
	created, err := f.service.AddImage(ctx, &model.ImageValues{
		Name:       strPtr("before"),
		Properties: map[string]string{"kernel_id": "1"},
	}, nil)
	if err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}

	updated, err := f.service.UpdateImage(ctx, created.ID, &model.ImageValues{
		Name:       strPtr("after"),
		Properties: map[string]string{"distro": "debian"},
	})
	if err != nil {
		t.Fatalf("UpdateImage() error = %v", err)
	}

	if updated.Name != "after" {
		t.Errorf("Name = %q, want after", updated.Name)
	}
	if len(updated.Properties) != 1 || updated.Properties[0].Key != "distro" {
		t.Errorf("properties = %+v, want just distro", updated.Properties)
	}
}

func TestCopyStream(t *testing.T) {
	t.Run("copies and closes", func(t *testing.T) {
		s := testutil.NewSliceStream([]byte("teapot data"), 4)
		var buf bytes.Buffer

		n, err := glance.CopyStream(&buf, s)
		if err != nil {
			t.Fatalf("CopyStream() error = %v", err)
		}
		if buf.String() != "teapot data" {
			t.Errorf("copied = %q, want teapot data", buf.String())
		}
		if n != int64(len("teapot data")) {
			t.Errorf("n = %d, want %d", n, len("teapot data"))
		}
		if !s.Closed {
			t.Error("stream not closed after copy")
		}
	})

	t.Run("closes on write failure", func(t *testing.T) {
		s := testutil.NewSliceStream([]byte("teapot data"), 4)

		_, err := glance.CopyStream(failWriter{}, s)
		if err == nil {
			t.Fatal("CopyStream() with failing writer succeeded, want error")
		}
		if !s.Closed {
			t.Error("stream not closed after write failure")
		}
	})
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("write failed") }
