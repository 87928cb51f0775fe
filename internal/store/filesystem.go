package store

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmcloud/glance/internal/glance"
)

// FilesystemBackend serves file:// locators from a directory tree
// under a configured root. Objects written through Put land at
// <root>/<key>; locators pointing outside the root are rejected.
// When an encryptor is set, object bytes are encrypted at rest and
// decrypted transparently on read.
type FilesystemBackend struct {
	root      string
	chunkSize int
	enc       glance.Encryptor // nil for plaintext storage
}

var _ glance.WritableBackend = (*FilesystemBackend)(nil)

// NewFilesystemBackend creates a filesystem backend rooted at the
// given directory, creating it if needed.
func NewFilesystemBackend(root string, chunkSize int, enc glance.Encryptor) (*FilesystemBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &FilesystemBackend{root: abs, chunkSize: chunkSize, enc: enc}, nil
}

// Get opens the file named by a file:// locator as a chunk stream.
// A missing file fails with NotFoundError.
func (b *FilesystemBackend) Get(_ context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	path, err := b.resolve(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &glance.NotFoundError{Locator: locator}
		}
		return nil, &glance.TransportError{Locator: locator, Err: err}
	}

	var rc io.ReadCloser = f
	if b.enc != nil {
		plain, err := b.enc.Decrypt(f)
		if err != nil {
			f.Close()
			return nil, &glance.TransportError{Locator: locator, Err: err}
		}
		rc = &decryptReadCloser{Reader: plain, src: f}
	}

	return newChunkStream(rc, locator, b.chunkSize, expectedSize), nil
}

// Put writes the bytes read from r to <root>/<key> using a temp file
// and an atomic rename, so readers never observe a half-written
// object. Returns the file:// locator and the plaintext byte count.
func (b *FilesystemBackend) Put(_ context.Context, key string, r io.Reader, size int64) (string, int64, error) {
	if key == "" || strings.ContainsRune(key, os.PathSeparator) {
		return "", 0, fmt.Errorf("invalid object key %q", key)
	}
	destPath := filepath.Join(b.root, key)

	tmpFile, err := os.CreateTemp(b.root, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	var dst io.Writer = tmpFile
	var encWriter io.WriteCloser
	if b.enc != nil {
		encWriter, err = b.enc.Encrypt(tmpFile)
		if err != nil {
			tmpFile.Close()
			return "", 0, fmt.Errorf("starting encryption: %w", err)
		}
		dst = encWriter
	}

	written, err := io.Copy(dst, r)
	if err != nil {
		tmpFile.Close()
		return "", 0, fmt.Errorf("writing object data: %w", err)
	}
	if encWriter != nil {
		if err := encWriter.Close(); err != nil {
			tmpFile.Close()
			return "", 0, fmt.Errorf("finalizing encryption: %w", err)
		}
	}
	if err := tmpFile.Close(); err != nil {
		return "", 0, fmt.Errorf("closing temp file: %w", err)
	}

	if size >= 0 && written != size {
		return "", 0, &glance.SizeMismatchError{Locator: "file://" + destPath, Expected: size, Actual: written}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", 0, fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return "file://" + destPath, written, nil
}

// resolve maps a file:// locator to a path under the store root.
// Absolute paths must already live under the root; relative paths are
// joined to it. Anything escaping the root is rejected.
func (b *FilesystemBackend) resolve(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}
	if u.Scheme != "file" {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: "expected scheme file"}
	}
	// file://host/path carries no meaning here; only local paths are
	// served.
	p := u.Path
	if u.Host != "" {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: "unexpected host in file locator"}
	}
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: "missing path"}
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(b.root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(b.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: "path escapes store root"}
	}
	return p, nil
}
