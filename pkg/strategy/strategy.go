// Package strategy resolves intercepted requests against the cache and the
// origin. Resolve never fails: every outcome is a well-formed response,
// with NetworkErrorResponse standing in when neither source can answer.
package strategy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

const networkErrorBody = "Network error."

// Resolution sources, used as metric label values.
const (
	sourceCache    = "cache"
	sourceNetwork  = "network"
	sourceFallback = "fallback"
	sourceError    = "network_error"
)

var resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swcache_strategy_resolutions_total",
	Help: "Total resolved requests by strategy and response source",
}, []string{"strategy", "source"})

// Fetcher retrieves a request from the origin.
type Fetcher interface {
	Fetch(ctx context.Context, req *request.Request) (*http.Response, error)
}

// Strategy resolves a request to a response.
type Strategy interface {
	Resolve(ctx context.Context, req *request.Request) *http.Response
}

// NetworkErrorResponse returns the response served when neither the
// network nor the cache can answer: 408, text/plain, "Network error.".
func NetworkErrorResponse() *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")

	return &http.Response{
		Status:        strconv.Itoa(http.StatusRequestTimeout) + " " + http.StatusText(http.StatusRequestTimeout),
		StatusCode:    http.StatusRequestTimeout,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(networkErrorBody))),
		ContentLength: int64(len(networkErrorBody)),
	}
}
