package store

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vmcloud/glance/internal/glance"
)

// SwiftBackend serves swift://<user>:<key>@<authurl>/<container>/<object>
// locators against an OpenStack Swift cluster using v1 token auth:
// a GET on the auth endpoint with X-Auth-User/X-Auth-Key headers
// yields an X-Storage-Url and X-Auth-Token, and objects are then
// addressed relative to the storage URL. Authentication happens per
// request; nothing is cached in the backend.
type SwiftBackend struct {
	client     *http.Client
	chunkSize  int
	authScheme string // "https" outside of tests

	// Write-side settings.
	authURL   string
	user      string
	key       string
	container string
}

var _ glance.WritableBackend = (*SwiftBackend)(nil)

// SwiftConfig holds the settings for a Swift backend. Reads need
// nothing beyond the locator; Put requires auth URL, credentials and
// a container.
type SwiftConfig struct {
	AuthURL    string
	User       string
	Key        string
	Container  string
	ChunkSize  int
	AuthScheme string // scheme prepended to the auth host, default https
}

// NewSwiftBackend creates a Swift backend from config. A nil client
// uses http.DefaultClient.
func NewSwiftBackend(client *http.Client, cfg SwiftConfig) *SwiftBackend {
	if client == nil {
		client = http.DefaultClient
	}
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = "https"
	}
	return &SwiftBackend{
		client:     client,
		chunkSize:  cfg.ChunkSize,
		authScheme: scheme,
		authURL:    cfg.AuthURL,
		user:       cfg.User,
		key:        cfg.Key,
		container:  cfg.Container,
	}
}

// Get authenticates against the locator's auth host and streams the
// object in chunks.
func (b *SwiftBackend) Get(ctx context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	loc, err := parseCredLocator("swift", locator)
	if err != nil {
		return nil, err
	}

	storageURL, token, err := b.auth(ctx, loc.host, loc.user, loc.key)
	if err != nil {
		return nil, &glance.TransportError{Locator: locator, Err: err}
	}

	objectURL := fmt.Sprintf("%s/%s/%s", storageURL, loc.container, loc.object)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &glance.TransportError{Locator: locator, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, &glance.NotFoundError{Locator: locator}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, &glance.TransportError{Locator: locator, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	return newChunkStream(resp.Body, locator, b.chunkSize, expectedSize), nil
}

// Put authenticates with the configured credentials and uploads the
// bytes read from r as <container>/<key>, returning the credentialed
// swift locator.
func (b *SwiftBackend) Put(ctx context.Context, key string, r io.Reader, size int64) (string, int64, error) {
	if b.authURL == "" || b.user == "" || b.key == "" || b.container == "" {
		return "", 0, fmt.Errorf("swift store is not configured for writes (auth_url, user, key and container required)")
	}

	location := fmt.Sprintf("swift://%s:%s@%s/%s/%s", b.user, b.key, b.authURL, b.container, key)

	storageURL, token, err := b.auth(ctx, b.authURL, b.user, b.key)
	if err != nil {
		return "", 0, &glance.TransportError{Locator: location, Err: err}
	}

	cr := &countingReader{r: r}
	objectURL := fmt.Sprintf("%s/%s/%s", storageURL, b.container, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, cr)
	if err != nil {
		return "", 0, &glance.TransportError{Locator: location, Err: err}
	}
	req.Header.Set("X-Auth-Token", token)
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", 0, &glance.TransportError{Locator: location, Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, &glance.TransportError{Locator: location, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if size >= 0 && cr.n != size {
		return "", cr.n, &glance.SizeMismatchError{Locator: location, Expected: size, Actual: cr.n}
	}

	return location, cr.n, nil
}

// auth performs v1 token auth against host and returns the storage URL
// and token to use for object requests.
func (b *SwiftBackend) auth(ctx context.Context, host, user, key string) (string, string, error) {
	authURL := fmt.Sprintf("%s://%s", b.authScheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("X-Auth-User", user)
	req.Header.Set("X-Auth-Key", key)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("swift auth request: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("swift auth failed with status %s", resp.Status)
	}

	storageURL := resp.Header.Get("X-Storage-Url")
	token := resp.Header.Get("X-Auth-Token")
	if storageURL == "" || token == "" {
		return "", "", fmt.Errorf("swift auth response missing storage url or token")
	}
	return storageURL, token, nil
}
