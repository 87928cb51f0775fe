package store

import (
	"errors"
	"io"

	"github.com/vmcloud/glance/internal/glance"
)

// DefaultChunkSize is the chunk size backends use when the store
// config does not set one.
const DefaultChunkSize = 64 * 1024

// chunkStream adapts an io.ReadCloser into a glance.ChunkStream that
// yields fixed-size chunks. The stream is single-pass; the transport
// is closed on exhaustion, on any error, and on Close, whichever comes
// first.
type chunkStream struct {
	rc        io.ReadCloser
	src       io.Reader
	locator   string
	chunkSize int
	expected  int64 // -1 when unknown
	read      int64
	done      bool
	closed    bool
}

func newChunkStream(rc io.ReadCloser, locator string, chunkSize int, expected int64) *chunkStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &chunkStream{
		rc:        rc,
		src:       &sourceReader{r: rc},
		locator:   locator,
		chunkSize: chunkSize,
		expected:  expected,
	}
}

func (s *chunkStream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.src, buf)
	s.read += int64(n)

	switch {
	case err == nil:
		return buf[:n], nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// ReadFull synthesizes ErrUnexpectedEOF for a legitimate short
		// final chunk; sourceReader keeps transport truncation errors
		// out of this branch.
		s.finish()
		if s.expected >= 0 && s.read != s.expected {
			return nil, &glance.SizeMismatchError{Locator: s.locator, Expected: s.expected, Actual: s.read}
		}
		if n > 0 {
			return buf[:n], nil
		}
		return nil, io.EOF
	default:
		s.finish()
		var se *sourceError
		if errors.As(err, &se) {
			err = se.err
		}
		return nil, &glance.TransportError{Locator: s.locator, Err: err}
	}
}

// sourceReader tags every non-EOF error from the transport so the
// chunk loop can tell a truncated connection (the source's own
// io.ErrUnexpectedEOF) apart from a clean short final chunk.
type sourceReader struct {
	r io.Reader
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &sourceError{err: err}
	}
	return n, err
}

// sourceError deliberately does not unwrap: its identity must not
// match io.ErrUnexpectedEOF through errors.Is.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }

// finish closes the transport exactly once and marks the stream
// exhausted.
func (s *chunkStream) finish() {
	s.done = true
	if !s.closed {
		s.closed = true
		s.rc.Close()
	}
}

func (s *chunkStream) Close() error {
	s.done = true
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rc.Close()
}

// decryptReadCloser pairs a plaintext reader with the ciphertext
// source it draws from, so closing the stream closes the transport.
type decryptReadCloser struct {
	io.Reader
	src io.Closer
}

func (d *decryptReadCloser) Close() error { return d.src.Close() }

// countingReader counts the bytes drawn through it. Used by writable
// backends to report the observed object size.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
