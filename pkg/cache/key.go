package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Identity is the canonical key of a cacheable request: method plus
// normalized absolute URL. Identity values are comparable and can be used
// as map keys.
type Identity struct {
	// Method is the upper-case HTTP method.
	Method string

	// URL is the normalized absolute URL.
	URL string
}

// NewIdentity normalizes rawURL and pairs it with method.
// An empty method means GET.
func NewIdentity(method, rawURL string) (Identity, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Identity{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return Identity{}, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return IdentityFor(method, u), nil
}

// IdentityFor builds an Identity from an already parsed absolute URL.
func IdentityFor(method string, u *url.URL) Identity {
	if method == "" {
		method = http.MethodGet
	}
	return Identity{
		Method: strings.ToUpper(method),
		URL:    normalizeURL(u),
	}
}

// String generates a deterministic key string.
// Format: METHOD url
//
// Example:
//
//	GET https://example.com/style/style.css?a=1&b=2
func (id Identity) String() string {
	return id.Method + " " + id.URL
}

// IsZero reports whether id was never set.
func (id Identity) IsZero() bool {
	return id.Method == "" && id.URL == ""
}

// normalizeURL lower-cases scheme and host, drops the fragment and user
// info, defaults the path to "/" and sorts query parameters by key.
func normalizeURL(u *url.URL) string {
	n := url.URL{
		Scheme:  strings.ToLower(u.Scheme),
		Host:    strings.ToLower(u.Host),
		Path:    u.Path,
		RawPath: u.RawPath,
	}
	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}

	query := u.Query()
	if len(query) > 0 {
		// Sorted for determinism; values keep their order.
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			for _, value := range query[key] {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
			}
		}
		n.RawQuery = strings.Join(parts, "&")
	}

	return n.String()
}
