package query

import (
	"log/slog"
	"strings"
	"time"

	"gpuboard/pricing-service/internal/model"
)

// Slider columns: numeric range filters whose facet min/max bounds must stay
// stable while the user drags them, so they are excluded from the row-set
// their own facets are computed over.
var sliderColumns = []string{"gpu_count", "vram_gb", "vcpus", "system_ram_gb", "price_hour_usd"}

// facetColumns are the columns facet histograms are computed for.
var facetColumns = append([]string{"provider", "gpu_model", "observed_at"}, sliderColumns...)

// Filters is the typed filter set applied as an AND of independent
// predicates. Zero values mean "no constraint". Slider values with other
// than 1 (exact) or 2 (inclusive [min, max]) elements are malformed and are
// ignored rather than rejected, so one bad query parameter never fails the
// whole page.
type Filters struct {
	Provider  string   // case-insensitive substring
	Providers []string // set membership, when expressed as a list
	GPUModel  string   // case-insensitive substring

	GPUCount     []float64
	VRAMGB       []float64
	VCPUs        []float64
	SystemRAMGB  []float64
	PriceHourUSD []float64

	ObservedAt []time.Time // 1 element: same UTC day; 2: inclusive range
}

// withoutSliders returns a copy with every slider constraint cleared.
func (f Filters) withoutSliders() Filters {
	f.GPUCount = nil
	f.VRAMGB = nil
	f.VCPUs = nil
	f.SystemRAMGB = nil
	f.PriceHourUSD = nil
	return f
}

// slidersOnly returns a copy with only the slider constraints kept.
func (f Filters) slidersOnly() Filters {
	return Filters{
		GPUCount:     f.GPUCount,
		VRAMGB:       f.VRAMGB,
		VCPUs:        f.VCPUs,
		SystemRAMGB:  f.SystemRAMGB,
		PriceHourUSD: f.PriceHourUSD,
	}
}

// apply returns the rows passing every predicate in f.
func (f Filters) apply(rows []model.PriceRow) []model.PriceRow {
	out := make([]model.PriceRow, 0, len(rows))
	for i := range rows {
		if f.matches(&rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}

func (f Filters) matches(row *model.PriceRow) bool {
	if len(f.Providers) > 0 && !memberOf(row.Provider, f.Providers) {
		return false
	}
	if f.Provider != "" && !containsFold(row.Provider, f.Provider) {
		return false
	}
	if f.GPUModel != "" && !containsFold(row.GPUModel, f.GPUModel) {
		return false
	}
	if !numericMatches("gpu_count", f.GPUCount, intValue(row.GPUCount)) {
		return false
	}
	if !numericMatches("vram_gb", f.VRAMGB, row.VRAMGB) {
		return false
	}
	if !numericMatches("vcpus", f.VCPUs, intValue(row.VCPUs)) {
		return false
	}
	if !numericMatches("system_ram_gb", f.SystemRAMGB, row.SystemRAMGB) {
		return false
	}
	if price, ok := row.EffectiveHourlyPrice(); !numericMatches("price_hour_usd", f.PriceHourUSD, ptrIf(price, ok)) {
		return false
	}
	if !dateMatches(f.ObservedAt, row.ObservedAt) {
		return false
	}
	return true
}

// numericMatches implements the slider contract: one element means exact
// match, two mean inclusive [min, max]. Rows missing the column pass — the
// constraint only applies where the value exists. Malformed shapes pass too.
func numericMatches(column string, filter []float64, value *float64) bool {
	switch len(filter) {
	case 0:
		return true
	case 1:
		return value == nil || *value == filter[0]
	case 2:
		return value == nil || (*value >= filter[0] && *value <= filter[1])
	default:
		slog.Warn("ignoring malformed numeric filter", "column", column, "elements", len(filter))
		return true
	}
}

func dateMatches(filter []time.Time, value time.Time) bool {
	switch len(filter) {
	case 0:
		return true
	case 1:
		return sameUTCDay(value, filter[0])
	case 2:
		return !value.Before(filter[0]) && !value.After(filter[1])
	default:
		slog.Warn("ignoring malformed date filter", "elements", len(filter))
		return true
	}
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func memberOf(value string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(value, s) {
			return true
		}
	}
	return false
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func ptrIf(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
