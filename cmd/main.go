// pricing-service
//
// Tracks cloud GPU instance pricing scraped periodically from multiple
// providers and serves it as a filterable, sortable, faceted dataset:
//   - snapshot cache in Redis, versioned per provider with content-hash
//     change detection
//   - stateless query engine (filters, facets, sort, offset pagination)
//   - per-user favorites in PostgreSQL, keyed by a stable configuration
//     key that survives re-scrapes
//
// Scrape cycles run on a cron schedule and via POST /api/jobs/scrape.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpuboard/pricing-service/internal/cache"
	"gpuboard/pricing-service/internal/config"
	"gpuboard/pricing-service/internal/db"
	"gpuboard/pricing-service/internal/favorites"
	"gpuboard/pricing-service/internal/model"
	"gpuboard/pricing-service/internal/pricing"
	"gpuboard/pricing-service/internal/query"
	"gpuboard/pricing-service/internal/scrape"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[pricing-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL (favorites) ──────────────────────────────────────────────
	log.Println("[pricing-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[pricing-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[pricing-service] PostgreSQL connected ✓")

	// ── Redis (snapshot cache) ──────────────────────────────────────────────
	log.Println("[pricing-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[pricing-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[pricing-service] Redis connected ✓")

	// ── Core components ─────────────────────────────────────────────────────
	store := cache.NewStore(rdb)
	favStore := favorites.NewStore(pool)
	engine := query.NewEngine(store, favStore, model.ClassGPU, cfg.DefaultPageSize)

	// Provider normalizers plug in here; each wraps scrape.NewFetcher() for
	// the raw payload and owns its provider's parsing.
	var sources []scrape.Source

	runner := scrape.NewRunner(store, sources, cfg.ScrapeIntervalMinutes)
	if err := runner.Start(ctx); err != nil {
		log.Fatalf("[pricing-service] Scheduler: %v", err)
	}
	defer runner.Stop()

	// ── HTTP server ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := pricing.NewHandler(store, engine, favStore, runner)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[pricing-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[pricing-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[pricing-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[pricing-service] Shutdown error: %v", err)
	}
	log.Println("[pricing-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "pricing-service",
		"version": version,
	})
}
