package glance

import (
	"context"
	"io"
)

// ChunkStream is a lazy, finite, single-pass sequence of byte chunks
// produced by a store backend. It is not restartable: it may represent
// a live network stream. Close releases the underlying transport and
// must be called on every exit path, including early abandonment; it
// is idempotent, and a stream that was consumed to io.EOF is already
// released.
type ChunkStream interface {
	// Next returns the next chunk, or io.EOF when the stream is
	// exhausted. Any other error is final: the stream is closed and the
	// transfer must be treated as failed even though earlier chunks
	// were delivered.
	Next() ([]byte, error)

	// Close releases the transport resource backing the stream.
	Close() error
}

// Backend retrieves opaque object data for one locator scheme. No
// bytes are fetched until the returned stream is iterated. Backends
// hold no per-request state: each Get opens its own transport, so a
// stalled read never starves unrelated requests.
type Backend interface {
	// Get opens the object named by locator and returns its bytes as a
	// chunk stream. expectedSize is the byte count the caller expects,
	// or -1 when unknown; a delivered count that differs surfaces as
	// SizeMismatchError at exhaustion. Malformed locators fail with
	// InvalidLocatorError before any I/O.
	Get(ctx context.Context, locator string, expectedSize int64) (ChunkStream, error)
}

// WritableBackend is implemented by backends that can also store
// object data.
type WritableBackend interface {
	Backend

	// Put streams the bytes read from r into the backend under key and
	// returns the locator the object is now addressable by, along with
	// the number of bytes written. size is the expected byte count, or
	// -1 when unknown; a mismatch fails the write with
	// SizeMismatchError and leaves no partial object behind.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, int64, error)
}

// BackendDispatcher routes locators to the backend registered for
// their scheme. Writes go to the configured default backend. The
// dispatch table is built once at startup and read-only afterwards.
type BackendDispatcher interface {
	Get(ctx context.Context, locator string, expectedSize int64) (ChunkStream, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, int64, error)
}

// Encryptor wraps store writes and reads with at-rest encryption.
// Encrypt returns a writer that encrypts everything written to it into
// w; it must be closed to flush the final block. Decrypt returns a
// reader yielding the plaintext of the ciphertext read from r.
type Encryptor interface {
	Encrypt(w io.Writer) (io.WriteCloser, error)
	Decrypt(r io.Reader) (io.Reader, error)
}

// CopyStream drains s into w and returns the number of bytes written.
// The stream is closed before returning regardless of outcome.
func CopyStream(w io.Writer, s ChunkStream) (int64, error) {
	defer s.Close()

	var written int64
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
}
