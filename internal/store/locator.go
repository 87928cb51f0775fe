package store

import (
	"net/url"
	"strings"

	"github.com/vmcloud/glance/internal/glance"
)

// credLocator is a parsed credentialed object-store URI of the form
// <scheme>://<user>:<key>@<host>/<container>/<object>. It is built per
// request and never persisted beyond the locator string it came from.
type credLocator struct {
	user      string
	key       string
	host      string
	container string
	object    string
}

// parseCredLocator decomposes a credentialed locator, rejecting any
// URI that does not carry every field the grammar requires.
func parseCredLocator(scheme, locator string) (*credLocator, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}
	if u.Scheme != scheme {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "expected scheme " + scheme}
	}
	if u.User == nil {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing credentials"}
	}

	user := u.User.Username()
	key, hasKey := u.User.Password()
	if user == "" || !hasKey || key == "" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing user or key"}
	}
	if u.Host == "" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing auth host"}
	}

	path := strings.Trim(u.Path, "/")
	container, object, found := strings.Cut(path, "/")
	if !found || container == "" || object == "" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing container or object"}
	}

	return &credLocator{
		user:      user,
		key:       key,
		host:      u.Host,
		container: container,
		object:    object,
	}, nil
}

// schemeOf extracts the URI scheme used for dispatch. The full
// locator grammar is left to the responsible backend.
func schemeOf(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}
	if u.Scheme == "" {
		return "", &glance.InvalidLocatorError{Locator: locator, Reason: "missing scheme"}
	}
	return u.Scheme, nil
}
