//go:build integration

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/swcache-proxy/pkg/config"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port()
}

// TestIntegration_VersionUpgrade installs two builds against one Redis
// and checks that the second one reclaims the first one's generation.
func TestIntegration_VersionUpgrade(t *testing.T) {
	addr := setupRedis(t)
	origin := newOrigin(t)

	cfg := testConfig(origin.URL())
	cfg.Store = config.StoreRedis
	cfg.RedisAddr = addr

	b, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer b.close()

	servingLifecycle(t, cfg, b.store)

	upgraded := cfg
	upgraded.Revision = 16
	lc := servingLifecycle(t, upgraded, b.store)

	names, err := b.store.ListGenerations(context.Background())
	if err != nil {
		t.Fatalf("ListGenerations() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"SW Demo_cache_0.0.16"}) {
		t.Errorf("generations = %v, want only SW Demo_cache_0.0.16", names)
	}

	origin.Reset()
	r := httptest.NewRequest(http.MethodGet, "/js/app.js", nil)
	w := httptest.NewRecorder()
	lc.ServeHTTP(w, r)

	if w.Code != http.StatusOK || w.Body.String() != "app()" {
		t.Errorf("response = %d %q, want cached script", w.Code, w.Body.String())
	}
	if got := origin.GetRequestCount(); got != 0 {
		t.Errorf("origin requests = %d, want 0", got)
	}
}
