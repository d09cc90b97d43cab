package lifecycle

import (
	"errors"
	"io"
	"net/http"

	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// hopHeaders are connection-scoped and never copied to the client.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Trailer",
}

// ServeHTTP resolves inbound requests against the origin. Before the
// lifecycle is serving it answers 503.
func (l *Lifecycle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if l.State() != StateServing {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	req, err := request.FromHTTP(r, l.opts.Origin)
	if err != nil {
		l.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	resp, err := l.Handle(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrNotServing) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}

	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		l.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Client went away during copy")
	}
}
