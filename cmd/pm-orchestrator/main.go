package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/config"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/logging"
	"github.com/Sternrassler/pm-orchestrator/pkg/metrics"
	"github.com/Sternrassler/pm-orchestrator/pkg/orchestrator"
	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		// Logger is not configured yet.
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	transport, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer transport.Close()

	reference := cache.NewReference(transport, cfg.CacheConfig())

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		reference.WithSnapshots(cache.NewRedisStore(redisClient))
		log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")
	}

	deps := orchestrator.Deps{
		Transport: transport,
		Cache:     reference,
		Limiter:   ratelimit.NewLimiter(cfg.PreloadConcurrency, logging.NewLogger("limiter")),
		QueryTTL:  cfg.QueryTTL,
	}
	go warmup(ctx, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(reference, redisClient),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("account", cfg.AccountID).
			Str("user_agent", cfg.UserAgent).
			Msg("Starting orchestrator")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down")
	return srv.Shutdown(shutdownCtx)
}

// warmup preloads the reference collections so the first query starts warm.
func warmup(ctx context.Context, deps orchestrator.Deps) {
	rc := orchestrator.New(deps, "startup preload")
	rc.PreloadEssentials(ctx, orchestrator.PreloadOptions{People: true, Projects: true})
	rc.LogSummary()
}

func newMux(reference *cache.Reference, redisClient *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(reference, redisClient))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyStatus is the /ready body.
type readyStatus struct {
	Status string          `json:"status"`
	Loaded map[string]bool `json:"loaded"`
	Cache  cache.Stats     `json:"cache"`
	Redis  string          `json:"redis,omitempty"`
}

// readyHandler reports ready once both reference collections are loaded and
// the snapshot tier, when configured, answers.
func readyHandler(reference *cache.Reference, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := readyStatus{
			Status: "ready",
			Loaded: map[string]bool{
				string(entity.KindPerson):  reference.Loaded(entity.KindPerson),
				string(entity.KindProject): reference.Loaded(entity.KindProject),
			},
			Cache: reference.Stats(),
		}
		for _, ok := range status.Loaded {
			if !ok {
				status.Status = "warming"
			}
		}

		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			status.Redis = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Msg("Readiness check: redis unreachable")
				status.Redis = "unreachable"
				status.Status = "degraded"
			}
		}

		code := http.StatusOK
		if status.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error().Err(err).Msg("Failed to write readiness response")
		}
	}
}
