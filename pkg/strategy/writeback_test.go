package strategy

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/Sternrassler/swcache-proxy/pkg/cache"
	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

func TestWriteBack_Eligible(t *testing.T) {
	gen := openGeneration(t)
	wb := NewWriteBack(gen, DefaultWriteBackConfig())

	tests := []struct {
		name   string
		url    string
		method string
		status int
		want   bool
	}{
		{"ok asset", origin + "/style/style.css", http.MethodGet, 200, true},
		{"no content", origin + "/ping", http.MethodGet, 204, true},
		{"redirect", origin + "/old", http.MethodGet, 301, false},
		{"not found", origin + "/missing", http.MethodGet, 404, false},
		{"post", origin + "/form", http.MethodPost, 200, false},
		{"extension", "chrome-extension://abc/x.js", http.MethodGet, 200, false},
		{"live reload", origin + "/fiveserver.js", http.MethodGet, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := request.New(tt.url, request.DestinationOther, false)
			if err != nil {
				t.Fatalf("request.New() error = %v", err)
			}
			req.Method = tt.method
			if got := wb.Eligible(req, tt.status); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteBack_CustomIgnoreList(t *testing.T) {
	wb := NewWriteBack(openGeneration(t), WriteBackConfig{Ignore: []string{"/private/"}})

	if wb.Eligible(newRequest(t, "/private/data.json", request.DestinationOther, false), 200) {
		t.Error("custom ignore pattern should exclude the request")
	}
	if !wb.Eligible(newRequest(t, "/fiveserver.js", request.DestinationScript, false), 200) {
		t.Error("a custom list replaces the defaults")
	}
}

func TestWriteBack_FlushAwaitsAllWrites(t *testing.T) {
	gen := openGeneration(t)

	var mu sync.Mutex
	written := map[cache.Identity]bool{}
	config := DefaultWriteBackConfig()
	config.OnWrite = func(id cache.Identity, err error) {
		mu.Lock()
		defer mu.Unlock()
		written[id] = err == nil
	}
	wb := NewWriteBack(gen, config)

	paths := []string{"/a.js", "/b.js", "/c.js", "/d.js"}
	for _, p := range paths {
		req := newRequest(t, p, request.DestinationScript, false)
		if !wb.Schedule(req, &cache.Entry{StatusCode: 200, Data: []byte(p)}) {
			t.Fatalf("Schedule(%s) = false", p)
		}
	}
	wb.Flush()

	mu.Lock()
	defer mu.Unlock()
	for _, p := range paths {
		req := newRequest(t, p, request.DestinationScript, false)
		if !written[req.Identity()] {
			t.Errorf("%s was not written before Flush returned", p)
		}
		entry, err := gen.Get(context.Background(), req.Identity())
		if err != nil || string(entry.Data) != p {
			t.Errorf("Get(%s) = %v, %v", p, entry, err)
		}
	}
}

func TestWriteBack_ScheduleSkipsIneligible(t *testing.T) {
	called := false
	config := DefaultWriteBackConfig()
	config.OnWrite = func(cache.Identity, error) { called = true }
	wb := NewWriteBack(openGeneration(t), config)

	req := newRequest(t, "/missing.js", request.DestinationScript, false)
	if wb.Schedule(req, &cache.Entry{StatusCode: 404}) {
		t.Error("Schedule() should refuse a 404 entry")
	}
	wb.Flush()
	if called {
		t.Error("OnWrite must not run for skipped writes")
	}
}
