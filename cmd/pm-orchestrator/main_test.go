package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/pm-orchestrator/internal/testutil"
	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/config"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newTestReference(t *testing.T) (*cache.Reference, *testutil.MockUpstream) {
	t.Helper()

	mock := testutil.NewMockUpstream()
	t.Cleanup(mock.Close)
	mock.SetJSON(testutil.Path("people.json"), []map[string]any{{"id": 1, "name": "Ada"}})
	mock.SetJSON(testutil.Path("projects.json"), []map[string]any{{"id": 2, "name": "Launch"}})

	cfg := client.DefaultConfig(testutil.AccountID, client.StaticToken("token"), "test/1.0 (test@example.com)")
	cfg.BaseURL = mock.URL()
	cfg.Pacing = ratelimit.Pacer{}

	transport, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return cache.NewReference(transport, cache.DefaultConfig(testutil.AccountID)), mock
}

func decodeReady(t *testing.T, resp *http.Response) readyStatus {
	t.Helper()
	var status readyStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode ready body: %v", err)
	}
	return status
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	reference, _ := newTestReference(t)
	handler := readyHandler(reference, nil)

	t.Run("warming", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		resp := w.Result()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
		if status := decodeReady(t, resp); status.Status != "warming" {
			t.Errorf("Expected status 'warming', got %q", status.Status)
		}
	})

	ctx := context.Background()
	for _, kind := range []entity.Kind{entity.KindPerson, entity.KindProject} {
		if err := reference.PreloadCollection(ctx, kind, false); err != nil {
			t.Fatalf("Preload %s failed: %v", kind, err)
		}
	}

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		status := decodeReady(t, resp)
		if !status.Loaded["person"] || !status.Loaded["project"] {
			t.Errorf("Expected both kinds loaded, got %v", status.Loaded)
		}
		if status.Cache.Entries != 2 {
			t.Errorf("Expected 2 cached entries, got %d", status.Cache.Entries)
		}
	})
}

func TestReadyEndpoint_Redis(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	reference, _ := newTestReference(t)
	reference.WithSnapshots(cache.NewRedisStore(redisClient))
	for _, kind := range []entity.Kind{entity.KindPerson, entity.KindProject} {
		if err := reference.PreloadCollection(context.Background(), kind, false); err != nil {
			t.Fatalf("Preload %s failed: %v", kind, err)
		}
	}

	handler := readyHandler(reference, redisClient)

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient.Close()

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		resp := w.Result()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
		if status := decodeReady(t, resp); status.Redis != "unreachable" {
			t.Errorf("Expected redis 'unreachable', got %q", status.Redis)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reference, _ := newTestReference(t)
	mux := newMux(reference, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	// Plain gauges are exported before any request is made.
	if !strings.Contains(bodyStr, "pm_limiter_in_flight") {
		t.Error("Expected metrics output to contain pm_limiter_in_flight")
	}
}

func TestRun_WarmsUpAndShutsDown(t *testing.T) {
	_, mock := newTestReference(t)

	cfg := config.Default()
	cfg.BaseURL = mock.URL()
	cfg.AccountID = testutil.AccountID
	cfg.AccessToken = "token"
	cfg.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	deadline := time.Now().Add(5 * time.Second)
	for mock.PathCount(testutil.Path("people.json")) == 0 || mock.PathCount(testutil.Path("projects.json")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Startup preload did not reach the upstream")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
