package cache

import (
	"net/http"
	"time"
)

// Entry is an immutable snapshot of a response stored under an Identity
// within one generation. Entries are replaced, never mutated.
type Entry struct {
	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Data is the response body
	Data []byte `json:"data"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Size returns the body length in bytes.
func (e *Entry) Size() int {
	return len(e.Data)
}

// OK reports whether the entry holds a 2xx response.
func (e *Entry) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// clone returns a deep copy so stored entries stay isolated from callers.
func (e *Entry) clone() *Entry {
	c := &Entry{
		StatusCode: e.StatusCode,
		Headers:    e.Headers.Clone(),
		CachedAt:   e.CachedAt,
	}
	if e.Data != nil {
		c.Data = append([]byte(nil), e.Data...)
	}
	return c
}
