package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vmcloud/glance/internal/glance"
)

// HTTPBackend serves http:// and https:// locators by fetching the
// object from the remote server. It is read-only. Each Get issues its
// own request, so a stalled remote only blocks the request that
// opened it.
type HTTPBackend struct {
	client    *http.Client
	chunkSize int
}

var _ glance.Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates an HTTP backend. A nil client uses
// http.DefaultClient.
func NewHTTPBackend(client *http.Client, chunkSize int) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{client: client, chunkSize: chunkSize}
}

// Get issues a GET for the locator and streams the response body in
// chunks. The remote closing the connection mid-stream surfaces as
// TransportError from the stream, never as silently short data.
func (b *HTTPBackend) Get(ctx context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "expected scheme http or https"}
	}
	if u.Host == "" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing host"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}

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
