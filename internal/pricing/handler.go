// Package pricing implements the HTTP surface of the pricing service.
//
// Favorites routes expect an x-user-id header forwarded by the Gateway;
// authentication itself happens upstream.
//
// Routes:
//
//	GET    /api/query                          → filtered, faceted, paginated row page
//	GET    /api/pricing                        → all providers' latest snapshots
//	GET    /api/pricing/{provider}             → one provider's snapshot
//	GET    /api/pricing/{provider}/{instance}  → single-row point lookup
//	GET    /api/favorites                      → list user's favorite config keys
//	POST   /api/favorites                      → add config keys
//	DELETE /api/favorites                      → remove config keys
//	POST   /api/jobs/scrape                    → run a scrape cycle now
//	GET    /api/jobs/scrape                    → cache stats
//	POST   /api/admin/trim                     → retention trim
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"gpuboard/pricing-service/internal/cache"
	"gpuboard/pricing-service/internal/favorites"
	"gpuboard/pricing-service/internal/query"
	"gpuboard/pricing-service/internal/scrape"
)

// Handler holds shared dependencies.
type Handler struct {
	store     *cache.Store
	engine    *query.Engine
	favorites *favorites.Store
	runner    *scrape.Runner
}

// NewHandler returns a configured Handler.
func NewHandler(store *cache.Store, engine *query.Engine, favs *favorites.Store, runner *scrape.Runner) *Handler {
	return &Handler{store: store, engine: engine, favorites: favs, runner: runner}
}

// RegisterRoutes mounts all pricing-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/query", h.handleQuery)
	mux.HandleFunc("/api/pricing", h.handleAllSnapshots)
	mux.HandleFunc("/api/pricing/", h.handlePricingPath)
	mux.HandleFunc("/api/favorites", h.handleFavorites)
	mux.HandleFunc("/api/jobs/scrape", h.handleScrape)
	mux.HandleFunc("/api/admin/trim", h.handleTrim)
}

// ─── Query ───────────────────────────────────────────────────────────────────

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req := query.ParseRequest(r.URL.Query())
	if req.FavoritesMode {
		userID := r.Header.Get("x-user-id")
		if userID == "" {
			jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
			return
		}
		req.UserID = userID
	}

	resp, err := h.engine.Query(r.Context(), req)
	if err != nil {
		log.Printf("[pricing] query error: %v", err)
		jsonError(w, "pricing cache unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, resp)
}

// ─── Snapshots & point lookups ──────────────────────────────────────────────

func (h *Handler) handleAllSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots, err := h.store.GetAllSnapshots(r.Context())
	if err != nil {
		log.Printf("[pricing] snapshots error: %v", err)
		jsonError(w, "pricing cache unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, snapshots)
}

// handlePricingPath dispatches /api/pricing/{provider}[/{instance}].
func (h *Handler) handlePricingPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/pricing/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		h.getSnapshot(w, r, parts[0])
	case len(parts) == 2:
		h.getInstance(w, r, parts[0], parts[1])
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request, provider string) {
	snap, err := h.store.GetSnapshot(r.Context(), provider)
	if errors.Is(err, cache.ErrNotFound) {
		jsonError(w, fmt.Sprintf("no pricing data for provider %q", provider), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[pricing] snapshot %s error: %v", provider, err)
		jsonError(w, "pricing cache unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, snap)
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request, provider, instance string) {
	row, err := h.store.GetInstance(r.Context(), provider, instance)
	if errors.Is(err, cache.ErrNotFound) {
		jsonError(w, fmt.Sprintf("no pricing data for instance %q from provider %q", instance, provider), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[pricing] instance %s/%s error: %v", provider, instance, err)
		jsonError(w, "pricing cache unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, row)
}

// ─── Favorites ───────────────────────────────────────────────────────────────

type favoritesBody struct {
	ConfigKeys []string `json:"configKeys"`
}

func (h *Handler) handleFavorites(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		keys, err := h.favorites.List(r.Context(), userID)
		if err != nil {
			log.Printf("[pricing] list favorites error: %v", err)
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}
		sort.Strings(list)
		jsonOK(w, map[string][]string{"favorites": list})

	case http.MethodPost:
		keys, ok := decodeFavoritesBody(w, r)
		if !ok {
			return
		}
		if err := h.favorites.Add(r.Context(), userID, keys); err != nil {
			log.Printf("[pricing] add favorites error: %v", err)
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
		jsonOK(w, map[string]bool{"success": true})

	case http.MethodDelete:
		keys, ok := decodeFavoritesBody(w, r)
		if !ok {
			return
		}
		if err := h.favorites.Remove(r.Context(), userID, keys); err != nil {
			log.Printf("[pricing] remove favorites error: %v", err)
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
		jsonOK(w, map[string]bool{"success": true})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func decodeFavoritesBody(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body favoritesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ConfigKeys) == 0 {
		jsonError(w, "body must contain configKeys", http.StatusBadRequest)
		return nil, false
	}
	if len(body.ConfigKeys) > 100 {
		jsonError(w, "too many configKeys (max 100)", http.StatusBadRequest)
		return nil, false
	}
	return body.ConfigKeys, true
}

// ─── Scrape trigger & stats ──────────────────────────────────────────────────

func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		started := time.Now()
		reports := h.runner.RunOnce(r.Context())
		jsonOK(w, map[string]any{
			"success":    true,
			"reports":    reports,
			"durationMs": time.Since(started).Milliseconds(),
		})

	case http.MethodGet:
		stats, err := h.store.GetStats(r.Context())
		if err != nil {
			log.Printf("[pricing] stats error: %v", err)
			jsonError(w, "pricing cache unavailable", http.StatusServiceUnavailable)
			return
		}
		jsonOK(w, map[string]any{
			"status":         "operational",
			"providers":      stats.Providers,
			"totalInstances": stats.TotalInstances,
		})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ─── Retention trim ──────────────────────────────────────────────────────────

func (h *Handler) handleTrim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Cutoff time.Time `json:"cutoff"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Cutoff.IsZero() {
		jsonError(w, "body must contain an RFC3339 cutoff", http.StatusBadRequest)
		return
	}

	removed, err := h.store.TrimOlderThan(r.Context(), body.Cutoff)
	if err != nil {
		log.Printf("[pricing] trim error: %v", err)
		jsonError(w, "pricing cache unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, map[string]int{"removed": removed})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
