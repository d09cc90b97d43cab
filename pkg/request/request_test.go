package request

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func mustOrigin(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestFromHTTP_URLRewrite(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		target  string
		wantURL string
	}{
		{
			name:    "root origin",
			origin:  "https://origin.example.com",
			target:  "/style/style.css",
			wantURL: "https://origin.example.com/style/style.css",
		},
		{
			name:    "origin with base path",
			origin:  "https://origin.example.com/app/",
			target:  "/index.html",
			wantURL: "https://origin.example.com/app/index.html",
		},
		{
			name:    "query is kept",
			origin:  "http://127.0.0.1:9000",
			target:  "/search?q=cats&page=2",
			wantURL: "http://127.0.0.1:9000/search?q=cats&page=2",
		},
		{
			name:    "root request",
			origin:  "http://127.0.0.1:9000",
			target:  "/",
			wantURL: "http://127.0.0.1:9000/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req, err := FromHTTP(r, mustOrigin(t, tt.origin))
			if err != nil {
				t.Fatalf("FromHTTP() error = %v", err)
			}
			if got := req.URL.String(); got != tt.wantURL {
				t.Errorf("URL = %q, want %q", got, tt.wantURL)
			}
		})
	}
}

func TestFromHTTP_Classification(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		target       string
		headers      map[string]string
		wantDest     Destination
		wantNavigate bool
	}{
		{
			name:     "fetch metadata style",
			target:   "/theme",
			headers:  map[string]string{"Sec-Fetch-Dest": "style", "Sec-Fetch-Mode": "no-cors"},
			wantDest: DestinationStyle,
		},
		{
			name:         "fetch metadata navigation",
			target:       "/about.html",
			headers:      map[string]string{"Sec-Fetch-Dest": "document", "Sec-Fetch-Mode": "navigate"},
			wantDest:     DestinationDocument,
			wantNavigate: true,
		},
		{
			name:     "fetch metadata unknown destination",
			target:   "/api/items",
			headers:  map[string]string{"Sec-Fetch-Dest": "empty", "Sec-Fetch-Mode": "cors"},
			wantDest: DestinationOther,
		},
		{
			name:     "guessed script",
			target:   "/js/app.js",
			wantDest: DestinationScript,
		},
		{
			name:     "guessed image",
			target:   "/img/photo1.JPG",
			wantDest: DestinationImage,
		},
		{
			name:     "guessed font",
			target:   "/fonts/inter.woff2",
			wantDest: DestinationFont,
		},
		{
			name:         "accept html means navigation",
			target:       "/",
			headers:      map[string]string{"Accept": "text/html,application/xhtml+xml"},
			wantDest:     DestinationOther,
			wantNavigate: true,
		},
		{
			name:     "post with accept html is not navigation",
			method:   http.MethodPost,
			target:   "/form",
			headers:  map[string]string{"Accept": "text/html"},
			wantDest: DestinationOther,
		},
		{
			name:     "json api",
			target:   "/api/items",
			headers:  map[string]string{"Accept": "application/json"},
			wantDest: DestinationOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			r := httptest.NewRequest(method, tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			req, err := FromHTTP(r, mustOrigin(t, "https://origin.example.com"))
			if err != nil {
				t.Fatalf("FromHTTP() error = %v", err)
			}
			if req.Destination != tt.wantDest {
				t.Errorf("Destination = %q, want %q", req.Destination, tt.wantDest)
			}
			if req.Navigate != tt.wantNavigate {
				t.Errorf("Navigate = %v, want %v", req.Navigate, tt.wantNavigate)
			}
		})
	}
}

func TestFromHTTP_Body(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("name=value"))
	req, err := FromHTTP(r, mustOrigin(t, "https://origin.example.com"))
	if err != nil {
		t.Fatalf("FromHTTP() error = %v", err)
	}

	if string(req.Body) != "name=value" {
		t.Errorf("Body = %q, want %q", req.Body, "name=value")
	}
	if req.Cacheable() {
		t.Error("POST request should not be cacheable")
	}

	// Inbound body is restored for other readers.
	restored, _ := io.ReadAll(r.Body)
	if string(restored) != "name=value" {
		t.Errorf("restored body = %q", restored)
	}
}

func TestRequest_Identity(t *testing.T) {
	req, err := New("https://Example.com/js/app.js?b=1&a=2", DestinationScript, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := req.Identity().String(); got != "GET https://example.com/js/app.js?a=2&b=1" {
		t.Errorf("Identity() = %q", got)
	}
	if !req.Cacheable() {
		t.Error("GET request should be cacheable")
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("/index.html", DestinationDocument, true); err == nil {
		t.Error("New() should reject relative URLs")
	}
}

func TestRequest_Matches(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		patterns []string
		want     bool
	}{
		{"no patterns", "https://example.com/app.js", nil, false},
		{"browser extension", "chrome-extension://abc/script.js", []string{"chrome-extension", "fiveserver"}, true},
		{"dev server", "http://localhost:5555/fiveserver/reload.js", []string{"chrome-extension", "fiveserver"}, true},
		{"regular asset", "https://example.com/style/style.css", []string{"chrome-extension", "fiveserver"}, false},
		{"empty pattern ignored", "https://example.com/", []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := New(tt.rawURL, DestinationOther, false)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := req.Matches(tt.patterns); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForPath(t *testing.T) {
	origin := mustOrigin(t, "https://origin.example.com/app")

	tests := []struct {
		path     string
		wantURL  string
		wantDest Destination
		wantNav  bool
	}{
		{"/", "https://origin.example.com/app/", DestinationOther, true},
		{"/index.html", "https://origin.example.com/app/index.html", DestinationDocument, true},
		{"/style/reset.css", "https://origin.example.com/app/style/reset.css", DestinationStyle, false},
		{"/js/app.js?v=2", "https://origin.example.com/app/js/app.js?v=2", DestinationScript, false},
		{"/img/photo1.jpg", "https://origin.example.com/app/img/photo1.jpg", DestinationImage, false},
		{"./index.html", "https://origin.example.com/app/index.html", DestinationDocument, true},
		{"./", "https://origin.example.com/app/", DestinationOther, true},
		{"js/../js/app.js", "https://origin.example.com/app/js/app.js", DestinationScript, false},
		{"/img/", "https://origin.example.com/app/img/", DestinationOther, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, err := ForPath(origin, tt.path)
			if err != nil {
				t.Fatalf("ForPath() error = %v", err)
			}
			if req.URL.String() != tt.wantURL {
				t.Errorf("URL = %q, want %q", req.URL.String(), tt.wantURL)
			}
			if req.Destination != tt.wantDest {
				t.Errorf("Destination = %q, want %q", req.Destination, tt.wantDest)
			}
			if req.Navigate != tt.wantNav {
				t.Errorf("Navigate = %v, want %v", req.Navigate, tt.wantNav)
			}
			if req.Method != http.MethodGet {
				t.Errorf("Method = %q, want GET", req.Method)
			}
		})
	}
}

func TestForPath_MatchesFromHTTPIdentity(t *testing.T) {
	origin := mustOrigin(t, "http://127.0.0.1:9000")

	tests := []struct {
		manifest string
		inbound  string
	}{
		{"/style/style.css", "/style/style.css"},
		{"./index.html", "/index.html"},
		{"./", "/"},
		{"style/./style.css", "/style/style.css"},
	}

	for _, tt := range tests {
		t.Run(tt.manifest, func(t *testing.T) {
			prewarmed, err := ForPath(origin, tt.manifest)
			if err != nil {
				t.Fatalf("ForPath() error = %v", err)
			}
			inbound, err := FromHTTP(httptest.NewRequest(http.MethodGet, tt.inbound, nil), origin)
			if err != nil {
				t.Fatalf("FromHTTP() error = %v", err)
			}

			if prewarmed.Identity() != inbound.Identity() {
				t.Errorf("identities differ: %s vs %s", prewarmed.Identity(), inbound.Identity())
			}
		})
	}
}

func TestForPath_RejectsAbsolute(t *testing.T) {
	origin := mustOrigin(t, "https://origin.example.com")
	for _, p := range []string{"https://evil.example.com/x.js", "//evil.example.com/x.js"} {
		if _, err := ForPath(origin, p); err == nil {
			t.Errorf("ForPath(%q) should fail", p)
		}
	}
}
