// Package request models an intercepted client request: where it goes,
// what kind of resource it asks for and whether it is a page navigation.
package request

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
)

// Destination is the kind of resource a request asks for.
type Destination string

const (
	DestinationDocument Destination = "document"
	DestinationStyle    Destination = "style"
	DestinationScript   Destination = "script"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
	DestinationOther    Destination = ""
)

// maxBodyBytes bounds request bodies buffered for forwarding.
const maxBodyBytes = 10 << 20

// Request is an intercepted request. It is immutable once built.
type Request struct {
	// Method is the HTTP method (GET when empty).
	Method string

	// URL is the absolute origin URL.
	URL *url.URL

	// Header holds the end-to-end request headers to forward.
	Header http.Header

	// Body is the buffered request body, nil for bodiless requests.
	Body []byte

	// Destination is the declared or guessed resource kind.
	Destination Destination

	// Navigate marks a top-level page navigation.
	Navigate bool
}

// New builds a GET request for an absolute URL.
func New(rawURL string, dest Destination, navigate bool) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return &Request{
		Method:      http.MethodGet,
		URL:         u,
		Header:      http.Header{},
		Destination: dest,
		Navigate:    navigate,
	}, nil
}

// Identity returns the cache key of the request.
func (r *Request) Identity() cache.Identity {
	return cache.IdentityFor(r.Method, r.URL)
}

// Cacheable reports whether responses to r may be stored or served from cache.
// Only reads are cached.
func (r *Request) Cacheable() bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// Matches reports whether the URL contains any of the patterns.
func (r *Request) Matches(patterns []string) bool {
	s := r.URL.String()
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// FromHTTP builds a Request from an inbound HTTP request, rewriting its
// path and query onto origin.
//
// Destination comes from Sec-Fetch-Dest, navigation from
// Sec-Fetch-Mode: navigate. Clients that send no fetch metadata get both
// guessed from the path extension and the Accept header.
func FromHTTP(r *http.Request, origin *url.URL) (*Request, error) {
	target := *origin
	target.Path = joinPath(origin.Path, r.URL.Path)
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery
	target.Fragment = ""

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(body) > maxBodyBytes {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if len(body) == 0 {
			body = nil
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	return &Request{
		Method:      method,
		URL:         &target,
		Header:      r.Header.Clone(),
		Body:        body,
		Destination: destinationOf(r),
		Navigate:    isNavigation(r),
	}, nil
}

// ForPath builds a GET request for an origin-relative path such as a
// manifest entry. The URL is built the same way FromHTTP builds it, so both
// yield the same Identity for the same path.
func ForPath(origin *url.URL, p string) (*Request, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", p, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("path %q must be origin-relative", p)
	}

	clean := cleanPath(ref.Path)
	target := *origin
	target.Path = joinPath(origin.Path, clean)
	target.RawPath = ""
	target.RawQuery = ref.RawQuery
	target.Fragment = ""

	dest := guessDestination(clean)
	return &Request{
		Method:      http.MethodGet,
		URL:         &target,
		Header:      http.Header{},
		Destination: dest,
		Navigate:    dest == DestinationDocument || clean == "" || strings.HasSuffix(clean, "/"),
	}, nil
}

// cleanPath resolves dot segments against the origin root, so "./index.html"
// and "/index.html" name the same resource. A trailing slash is kept.
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	c := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && c != "/" {
		c += "/"
	}
	return c
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		if p == "" {
			return "/"
		}
		return p
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}

func destinationOf(r *http.Request) Destination {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		switch Destination(strings.ToLower(dest)) {
		case DestinationDocument:
			return DestinationDocument
		case DestinationStyle:
			return DestinationStyle
		case DestinationScript:
			return DestinationScript
		case DestinationImage:
			return DestinationImage
		case DestinationFont:
			return DestinationFont
		default:
			return DestinationOther
		}
	}
	return guessDestination(r.URL.Path)
}

func guessDestination(p string) Destination {
	switch strings.ToLower(path.Ext(p)) {
	case ".css":
		return DestinationStyle
	case ".js", ".mjs":
		return DestinationScript
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".avif":
		return DestinationImage
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return DestinationFont
	case ".html", ".htm":
		return DestinationDocument
	default:
		return DestinationOther
	}
}

func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	if r.Method != "" && r.Method != http.MethodGet {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
