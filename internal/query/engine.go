// Package query implements the stateless pricing query engine: it flattens
// the current snapshots of every provider into one row-set, applies filters,
// computes facet histograms, sorts with a deterministic tie-break and
// paginates via offset cursors.
//
// Every call recomputes from the snapshot store, so concurrent queries never
// interfere and writes landing between two requests only shift which
// snapshot version a request observes.
package query

import (
	"context"
	"fmt"

	"gpuboard/pricing-service/internal/identity"
	"gpuboard/pricing-service/internal/model"
)

// SnapshotSource is the read side of the snapshot store.
type SnapshotSource interface {
	GetAllSnapshots(ctx context.Context) ([]model.ProviderSnapshot, error)
}

// FavoriteSource resolves a user's favorite stable configuration keys.
type FavoriteSource interface {
	List(ctx context.Context, userID string) (map[string]struct{}, error)
}

// Request is one query over the current snapshot set.
type Request struct {
	Filters   Filters
	Sort      *SortSpec
	PageStart int
	PageSize  int

	// FavoritesMode restricts the row-set to the user's favorites before
	// user filters are applied.
	FavoritesMode bool
	UserID        string
}

// Meta carries the aggregate counts and facets alongside one page.
type Meta struct {
	TotalRowCount  int              `json:"totalRowCount"`
	FilterRowCount int              `json:"filterRowCount"`
	Facets         map[string]Facet `json:"facets"`
}

// Response is one page of the filtered, sorted row-set plus cursors.
type Response struct {
	Data       []model.PriceRow `json:"data"`
	Meta       Meta             `json:"meta"`
	PrevCursor *int             `json:"prevCursor"`
	NextCursor *int             `json:"nextCursor"`
}

// Engine evaluates queries against the snapshot store.
type Engine struct {
	snapshots SnapshotSource
	favorites FavoriteSource

	// classFilter restricts flattening to one row class. This is a static
	// business rule (the table UI shows GPU offerings), not user input.
	classFilter model.RowClass

	defaultPageSize int
}

// NewEngine returns an Engine restricted to class rows (empty = all classes).
func NewEngine(snapshots SnapshotSource, favorites FavoriteSource, class model.RowClass, defaultPageSize int) *Engine {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	return &Engine{
		snapshots:       snapshots,
		favorites:       favorites,
		classFilter:     class,
		defaultPageSize: defaultPageSize,
	}
}

// Query runs the full pipeline: flatten, dedup, favorites restriction,
// filter, facets, sort, paginate. An empty snapshot set yields an empty page
// with zero counts, not an error.
func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	snapshots, err := e.snapshots.GetAllSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	total := e.flatten(snapshots)
	total = dedupByUUID(total)

	if req.FavoritesMode {
		total, err = e.restrictToFavorites(ctx, total, req.UserID)
		if err != nil {
			return nil, err
		}
	}

	// Two filter passes: everything except sliders first, so slider facet
	// bounds stay put while the user drags, then the sliders themselves.
	withoutSlider := req.Filters.withoutSliders().apply(total)
	filtered := req.Filters.slidersOnly().apply(withoutSlider)

	facets := mergeFacets(computeFacets(withoutSlider), computeFacets(filtered))

	sortRows(filtered, req.Sort)

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = e.defaultPageSize
	}
	start := req.PageStart
	if start < 0 || start > len(filtered) {
		start = clamp(start, 0, len(filtered))
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	page := filtered[start:end]

	var prevCursor, nextCursor *int
	if start > 0 {
		prev := start - pageSize
		if prev < 0 {
			prev = 0
		}
		prevCursor = &prev
	}
	if start+len(page) < len(filtered) {
		next := start + len(page)
		nextCursor = &next
	}

	return &Response{
		Data: page,
		Meta: Meta{
			TotalRowCount:  len(total),
			FilterRowCount: len(filtered),
			Facets:         facets,
		},
		PrevCursor: prevCursor,
		NextCursor: nextCursor,
	}, nil
}

// flatten concatenates every snapshot's rows, annotating each with the
// snapshot's provider and observation time and a computed volatile id.
func (e *Engine) flatten(snapshots []model.ProviderSnapshot) []model.PriceRow {
	var rows []model.PriceRow
	for si := range snapshots {
		snap := &snapshots[si]
		for ri := range snap.Rows {
			row := snap.Rows[ri]
			if e.classFilter != "" && row.Class != e.classFilter {
				continue
			}
			row.Provider = snap.Provider
			row.ObservedAt = snap.LastUpdated
			row.UUID = identity.VolatileID(snap.Provider, snap.LastUpdated, row)
			rows = append(rows, row)
		}
	}
	return rows
}

// dedupByUUID drops later duplicates, guarding against a provider emitting
// logically identical rows within one snapshot.
func dedupByUUID(rows []model.PriceRow) []model.PriceRow {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for i := range rows {
		if _, dup := seen[rows[i].UUID]; dup {
			continue
		}
		seen[rows[i].UUID] = struct{}{}
		out = append(out, rows[i])
	}
	return out
}

func (e *Engine) restrictToFavorites(ctx context.Context, rows []model.PriceRow, userID string) ([]model.PriceRow, error) {
	if userID == "" {
		return nil, fmt.Errorf("favorites mode requires a user id")
	}
	keys, err := e.favorites.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	out := rows[:0]
	for i := range rows {
		key := identity.StableConfigKey(rows[i].Provider, rows[i])
		if _, ok := keys[key]; ok {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
