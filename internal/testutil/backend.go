package testutil

import (
	"context"
	"io"

	"github.com/vmcloud/glance/internal/glance"
)

// SliceStream is a ChunkStream over an in-memory payload, chunked at a
// fixed size. Closed records whether Close was called, so tests can
// verify streams are not abandoned open.
type SliceStream struct {
	data      []byte
	chunkSize int
	pos       int
	Closed    bool
}

// NewSliceStream creates a SliceStream over data with the given chunk
// size (defaults to 4 when <= 0).
func NewSliceStream(data []byte, chunkSize int) *SliceStream {
	if chunkSize <= 0 {
		chunkSize = 4
	}
	return &SliceStream{data: data, chunkSize: chunkSize}
}

func (s *SliceStream) Next() ([]byte, error) {
	if s.Closed || s.pos >= len(s.data) {
		return nil, io.EOF
	}
	end := s.pos + s.chunkSize
	if end > len(s.data) {
		end = len(s.data)
	}
	chunk := s.data[s.pos:end]
	s.pos = end
	return chunk, nil
}

func (s *SliceStream) Close() error {
	s.Closed = true
	return nil
}

// StubBackend is a read-only store backend serving a fixed payload for
// any locator. It records the locators and expected sizes it was asked
// for.
type StubBackend struct {
	Data     []byte
	Err      error // returned from Get when set
	GetCalls []string
	GetSizes []int64
	Streams  []*SliceStream
}

func (b *StubBackend) Get(_ context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	b.GetCalls = append(b.GetCalls, locator)
	b.GetSizes = append(b.GetSizes, expectedSize)
	if b.Err != nil {
		return nil, b.Err
	}
	s := NewSliceStream(b.Data, 4)
	b.Streams = append(b.Streams, s)
	return s, nil
}

// RecordingBackend is a writable store backend that captures written
// payloads in memory. Put returns a "stub://" locator derived from the
// key; reads resolve against the captured payloads.
type RecordingBackend struct {
	StubBackend
	PutErr error // returned from Put when set
	Puts   map[string][]byte
}

func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{Puts: make(map[string][]byte)}
}

func (b *RecordingBackend) Put(_ context.Context, key string, r io.Reader, _ int64) (string, int64, error) {
	if b.PutErr != nil {
		return "", 0, b.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	b.Puts[key] = data
	return "stub://" + key, int64(len(data)), nil
}

func (b *RecordingBackend) Get(ctx context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	b.GetCalls = append(b.GetCalls, locator)
	b.GetSizes = append(b.GetSizes, expectedSize)
	if b.Err != nil {
		return nil, b.Err
	}
	data, ok := b.Puts[keyFromLocator(locator)]
	if !ok {
		return nil, &glance.NotFoundError{Locator: locator}
	}
	s := NewSliceStream(data, 4)
	b.Streams = append(b.Streams, s)
	return s, nil
}

func keyFromLocator(locator string) string {
	const prefix = "stub://"
	if len(locator) > len(prefix) && locator[:len(prefix)] == prefix {
		return locator[len(prefix):]
	}
	return locator
}
