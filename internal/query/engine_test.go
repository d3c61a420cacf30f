package query_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gpuboard/pricing-service/internal/identity"
	"gpuboard/pricing-service/internal/model"
	"gpuboard/pricing-service/internal/query"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

var scrapeTime = time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)

type stubSnapshots struct {
	snaps []model.ProviderSnapshot
	err   error
}

func (s stubSnapshots) GetAllSnapshots(ctx context.Context) ([]model.ProviderSnapshot, error) {
	return s.snaps, s.err
}

type stubFavorites struct {
	keys map[string]struct{}
	err  error
}

func (s stubFavorites) List(ctx context.Context, userID string) (map[string]struct{}, error) {
	return s.keys, s.err
}

func gpuRow(modelName string, count int, vram, price float64) model.PriceRow {
	return model.PriceRow{
		InstanceID:   fmt.Sprintf("%s-%dx", modelName, count),
		GPUModel:     modelName,
		GPUCount:     intPtr(count),
		VRAMGB:       floatPtr(vram),
		PriceUnit:    "hour",
		PriceHourUSD: floatPtr(price),
		Class:        model.ClassGPU,
	}
}

func snapshot(provider string, rows ...model.PriceRow) model.ProviderSnapshot {
	return model.ProviderSnapshot{
		Provider:    provider,
		Version:     0,
		LastUpdated: scrapeTime,
		Rows:        rows,
	}
}

func newEngine(snaps ...model.ProviderSnapshot) *query.Engine {
	return query.NewEngine(stubSnapshots{snaps: snaps}, stubFavorites{}, model.ClassGPU, 50)
}

func mustQuery(t *testing.T, e *query.Engine, req query.Request) *query.Response {
	t.Helper()
	resp, err := e.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return resp
}

// ── Flatten & dedup ────────────────────────────────────────────────────────

func TestQuery_EmptySnapshotSet(t *testing.T) {
	resp := mustQuery(t, newEngine(), query.Request{})
	if len(resp.Data) != 0 || resp.Meta.TotalRowCount != 0 || resp.Meta.FilterRowCount != 0 {
		t.Errorf("empty snapshots must yield empty page with zero counts, got %+v", resp.Meta)
	}
	if resp.PrevCursor != nil || resp.NextCursor != nil {
		t.Error("empty result must have no cursors")
	}
}

func TestQuery_FlattenAnnotatesRows(t *testing.T) {
	e := newEngine(
		snapshot("alpha", gpuRow("H100", 8, 80, 2.00)),
		snapshot("beta", gpuRow("A100", 4, 40, 1.10)),
	)
	resp := mustQuery(t, e, query.Request{Sort: &query.SortSpec{ID: "provider"}})
	if resp.Meta.TotalRowCount != 2 {
		t.Fatalf("TotalRowCount = %d, want 2", resp.Meta.TotalRowCount)
	}
	for _, row := range resp.Data {
		if row.Provider == "" || row.UUID == "" || row.ObservedAt.IsZero() {
			t.Errorf("flattened row missing annotations: %+v", row)
		}
	}
}

func TestQuery_ClassRestriction(t *testing.T) {
	cpu := model.PriceRow{Item: "epyc-64", CPUModel: "AMD Genoa", Class: model.ClassCPU}
	e := newEngine(snapshot("alpha", gpuRow("H100", 8, 80, 2.00), cpu))
	resp := mustQuery(t, e, query.Request{})
	if resp.Meta.TotalRowCount != 1 {
		t.Errorf("CPU rows must be excluded by the static class rule, got %d rows", resp.Meta.TotalRowCount)
	}
}

func TestQuery_DeduplicatesIdenticalRows(t *testing.T) {
	row := gpuRow("H100", 8, 80, 2.00)
	e := newEngine(snapshot("alpha", row, row))
	resp := mustQuery(t, e, query.Request{})
	if resp.Meta.TotalRowCount != 1 {
		t.Errorf("duplicate rows within one snapshot must dedup to 1, got %d", resp.Meta.TotalRowCount)
	}
}

// ── Filters ────────────────────────────────────────────────────────────────

func TestQuery_RangeFilterIsInclusive(t *testing.T) {
	e := newEngine(snapshot("alpha",
		gpuRow("A", 1, 9, 1), gpuRow("B", 1, 10, 1), gpuRow("C", 1, 15, 1),
		gpuRow("D", 1, 20, 1), gpuRow("E", 1, 21, 1),
	))
	resp := mustQuery(t, e, query.Request{
		Filters: query.Filters{VRAMGB: []float64{10, 20}},
		Sort:    &query.SortSpec{ID: "vram_gb"},
	})
	if resp.Meta.FilterRowCount != 3 {
		t.Fatalf("FilterRowCount = %d, want 3 (10, 15, 20 inclusive)", resp.Meta.FilterRowCount)
	}
	for _, row := range resp.Data {
		if *row.VRAMGB < 10 || *row.VRAMGB > 20 {
			t.Errorf("row with vram %g escaped the [10,20] filter", *row.VRAMGB)
		}
	}
}

func TestQuery_SingleElementFilterIsExactMatch(t *testing.T) {
	e := newEngine(snapshot("alpha", gpuRow("A", 1, 24, 1), gpuRow("B", 8, 80, 2)))
	resp := mustQuery(t, e, query.Request{Filters: query.Filters{GPUCount: []float64{8}}})
	if resp.Meta.FilterRowCount != 1 || *resp.Data[0].GPUCount != 8 {
		t.Errorf("exact filter failed: %+v", resp.Data)
	}
}

func TestQuery_MalformedRangeIsIgnored(t *testing.T) {
	e := newEngine(snapshot("alpha", gpuRow("A", 1, 24, 1), gpuRow("B", 8, 80, 2)))
	resp := mustQuery(t, e, query.Request{Filters: query.Filters{VRAMGB: []float64{1, 2, 3}}})
	if resp.Meta.FilterRowCount != 2 {
		t.Errorf("a 3-element range must be treated as no constraint, got %d rows", resp.Meta.FilterRowCount)
	}
}

func TestQuery_StringFilterIsCaseInsensitiveSubstring(t *testing.T) {
	e := newEngine(snapshot("alpha", gpuRow("NVIDIA H100", 8, 80, 2), gpuRow("NVIDIA A100", 8, 80, 1)))
	resp := mustQuery(t, e, query.Request{Filters: query.Filters{GPUModel: "h100"}})
	if resp.Meta.FilterRowCount != 1 || resp.Data[0].GPUModel != "NVIDIA H100" {
		t.Errorf("substring filter failed: %+v", resp.Data)
	}
}

func TestQuery_ProviderSetFilter(t *testing.T) {
	e := newEngine(
		snapshot("alpha", gpuRow("H100", 8, 80, 2)),
		snapshot("beta", gpuRow("A100", 8, 80, 1)),
		snapshot("gamma", gpuRow("L40S", 1, 48, 1)),
	)
	resp := mustQuery(t, e, query.Request{Filters: query.Filters{Providers: []string{"alpha", "GAMMA"}}})
	if resp.Meta.FilterRowCount != 2 {
		t.Errorf("set filter matched %d rows, want 2", resp.Meta.FilterRowCount)
	}
}

func TestQuery_PriceFilterCoercesAlternateField(t *testing.T) {
	generic := gpuRow("H100", 8, 80, 0)
	generic.PriceHourUSD = nil
	generic.PriceUSD = floatPtr(2.50)
	e := newEngine(snapshot("alpha", generic, gpuRow("A100", 8, 80, 9.00)))
	resp := mustQuery(t, e, query.Request{Filters: query.Filters{PriceHourUSD: []float64{2, 3}}})
	if resp.Meta.FilterRowCount != 1 || resp.Data[0].GPUModel != "H100" {
		t.Errorf("price_usd fallback row should match the price filter: %+v", resp.Data)
	}
}

func TestQuery_DateFilterSameDay(t *testing.T) {
	e := newEngine(snapshot("alpha", gpuRow("H100", 8, 80, 2)))
	sameDay := mustQuery(t, e, query.Request{
		Filters: query.Filters{ObservedAt: []time.Time{scrapeTime.Add(5 * time.Hour)}},
	})
	if sameDay.Meta.FilterRowCount != 1 {
		t.Error("1-element date filter must match the same UTC calendar day")
	}
	otherDay := mustQuery(t, e, query.Request{
		Filters: query.Filters{ObservedAt: []time.Time{scrapeTime.AddDate(0, 0, 1)}},
	})
	if otherDay.Meta.FilterRowCount != 0 {
		t.Error("1-element date filter must exclude other days")
	}
}

// ── Facets ─────────────────────────────────────────────────────────────────

func TestQuery_FacetBoundsStableUnderOwnSlider(t *testing.T) {
	e := newEngine(snapshot("alpha",
		gpuRow("A", 1, 10, 1), gpuRow("B", 1, 15, 1), gpuRow("C", 1, 20, 1),
	))

	wide := mustQuery(t, e, query.Request{Filters: query.Filters{VRAMGB: []float64{10, 20}}})
	narrow := mustQuery(t, e, query.Request{Filters: query.Filters{VRAMGB: []float64{10, 15}}})

	wideFacet := wide.Meta.Facets["vram_gb"]
	narrowFacet := narrow.Meta.Facets["vram_gb"]
	if *wideFacet.Min != *narrowFacet.Min || *wideFacet.Max != *narrowFacet.Max {
		t.Errorf("slider facet bounds moved while dragging: [%g,%g] vs [%g,%g]",
			*wideFacet.Min, *wideFacet.Max, *narrowFacet.Min, *narrowFacet.Max)
	}
	if *narrowFacet.Max != 20 {
		t.Errorf("vram facet max = %g, want 20 (computed without the slider)", *narrowFacet.Max)
	}

	// Discrete facets on other columns do follow the slider.
	if got := narrow.Meta.Facets["gpu_model"].Total; got != 2 {
		t.Errorf("gpu_model facet total = %d, want 2 under the narrowed slider", got)
	}
	if got := wide.Meta.Facets["gpu_model"].Total; got != 3 {
		t.Errorf("gpu_model facet total = %d, want 3 under the wide slider", got)
	}
}

func TestQuery_FacetCountsAndBounds(t *testing.T) {
	e := newEngine(
		snapshot("alpha", gpuRow("H100", 8, 80, 2.00), gpuRow("H100", 1, 80, 0.50)),
		snapshot("beta", gpuRow("A100", 8, 40, 1.10)),
	)
	resp := mustQuery(t, e, query.Request{})

	providers := resp.Meta.Facets["provider"]
	if providers.Total != 3 || len(providers.Rows) != 2 {
		t.Errorf("provider facet = %+v, want 2 values totalling 3", providers)
	}
	price := resp.Meta.Facets["price_hour_usd"]
	if *price.Min != 0.50 || *price.Max != 2.00 {
		t.Errorf("price facet bounds = [%g,%g], want [0.5,2]", *price.Min, *price.Max)
	}
}

// ── Sort ───────────────────────────────────────────────────────────────────

func TestQuery_SortAscendingAndDescending(t *testing.T) {
	e := newEngine(snapshot("alpha",
		gpuRow("A", 1, 24, 3.00), gpuRow("B", 1, 24, 1.00), gpuRow("C", 1, 24, 2.00),
	))

	asc := mustQuery(t, e, query.Request{Sort: &query.SortSpec{ID: "price_hour_usd"}})
	for i := 1; i < len(asc.Data); i++ {
		if *asc.Data[i-1].PriceHourUSD > *asc.Data[i].PriceHourUSD {
			t.Fatalf("ascending sort out of order at %d", i)
		}
	}

	desc := mustQuery(t, e, query.Request{Sort: &query.SortSpec{ID: "price_hour_usd", Desc: true}})
	for i := 1; i < len(desc.Data); i++ {
		if *desc.Data[i-1].PriceHourUSD < *desc.Data[i].PriceHourUSD {
			t.Fatalf("descending sort out of order at %d", i)
		}
	}
}

func TestQuery_MissingValuesSortLastBothDirections(t *testing.T) {
	unpriced := gpuRow("Z", 1, 24, 0)
	unpriced.PriceHourUSD = nil
	e := newEngine(snapshot("alpha", gpuRow("A", 1, 24, 2.00), unpriced, gpuRow("B", 1, 24, 1.00)))

	for _, desc := range []bool{false, true} {
		resp := mustQuery(t, e, query.Request{Sort: &query.SortSpec{ID: "price_hour_usd", Desc: desc}})
		last := resp.Data[len(resp.Data)-1]
		if last.PriceHourUSD != nil {
			t.Errorf("desc=%v: row without price must sort last, got %+v", desc, last)
		}
	}
}

// ── Pagination ─────────────────────────────────────────────────────────────

// Fifty rows with an identical price force the tie-break on every
// comparison; chaining nextCursor from 0 must reproduce the full set exactly
// once with no gaps or duplicates even though each request re-runs the whole
// pipeline from scratch.
func TestQuery_PaginationNonOverlapUnderTies(t *testing.T) {
	rows := make([]model.PriceRow, 0, 50)
	for i := 0; i < 50; i++ {
		r := gpuRow("H100", 8, 80, 1.99)
		r.InstanceID = fmt.Sprintf("h100-%02d", i)
		rows = append(rows, r)
	}
	e := newEngine(snapshot("alpha", rows...))

	seen := make(map[string]int)
	start := 0
	pages := 0
	for {
		resp := mustQuery(t, e, query.Request{
			Sort:      &query.SortSpec{ID: "price_hour_usd"},
			PageStart: start,
			PageSize:  7,
		})
		for _, row := range resp.Data {
			seen[row.UUID]++
		}
		pages++
		if pages > 20 {
			t.Fatal("cursor chain did not terminate")
		}
		if resp.NextCursor == nil {
			break
		}
		start = *resp.NextCursor
	}

	if len(seen) != 50 {
		t.Errorf("cursor chain visited %d distinct rows, want 50", len(seen))
	}
	for uuid, n := range seen {
		if n != 1 {
			t.Errorf("row %s seen %d times, want exactly once", uuid, n)
		}
	}
}

func TestQuery_Cursors(t *testing.T) {
	rows := make([]model.PriceRow, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, gpuRow(fmt.Sprintf("M%d", i), 1, 24, float64(i)))
	}
	e := newEngine(snapshot("alpha", rows...))

	first := mustQuery(t, e, query.Request{PageSize: 4})
	if first.PrevCursor != nil {
		t.Error("first page must have no prevCursor")
	}
	if first.NextCursor == nil || *first.NextCursor != 4 {
		t.Errorf("first page nextCursor = %v, want 4", first.NextCursor)
	}

	middle := mustQuery(t, e, query.Request{PageStart: 4, PageSize: 4})
	if middle.PrevCursor == nil || *middle.PrevCursor != 0 {
		t.Errorf("middle page prevCursor = %v, want 0", middle.PrevCursor)
	}

	last := mustQuery(t, e, query.Request{PageStart: 8, PageSize: 4})
	if last.NextCursor != nil {
		t.Error("last page must have no nextCursor")
	}
	if len(last.Data) != 2 {
		t.Errorf("last page has %d rows, want 2", len(last.Data))
	}
}

// ── Favorites mode ─────────────────────────────────────────────────────────

func TestQuery_FavoritesModeRestrictsByStableKey(t *testing.T) {
	favoriteRow := gpuRow("H100", 8, 80, 2.00)
	otherRow := gpuRow("A100", 8, 40, 1.10)

	// The favorite was saved against an earlier scrape of the same offering
	// at a different price: the stable key must still match.
	earlier := favoriteRow
	earlier.PriceHourUSD = floatPtr(1.50)
	key := identity.StableConfigKey("alpha", earlier)

	e := query.NewEngine(
		stubSnapshots{snaps: []model.ProviderSnapshot{snapshot("alpha", favoriteRow, otherRow)}},
		stubFavorites{keys: map[string]struct{}{key: {}}},
		model.ClassGPU, 50,
	)
	resp := mustQuery(t, e, query.Request{FavoritesMode: true, UserID: "user-1"})
	if resp.Meta.TotalRowCount != 1 || resp.Data[0].GPUModel != "H100" {
		t.Errorf("favorites mode returned %+v, want only the favorited H100", resp.Data)
	}
}

func TestQuery_FavoritesModeRequiresUser(t *testing.T) {
	e := newEngine(snapshot("alpha", gpuRow("H100", 8, 80, 2.00)))
	if _, err := e.Query(context.Background(), query.Request{FavoritesMode: true}); err == nil {
		t.Error("favorites mode without a user id must fail")
	}
}
