package query

import (
	"sort"
	"time"

	"gpuboard/pricing-service/internal/model"
)

// FacetRow is one {value, count} pair inside a facet.
type FacetRow struct {
	Value any `json:"value"`
	Total int `json:"total"`
}

// Facet aggregates one column over a row-set: distinct value counts plus
// min/max for numeric columns. Derived per request, never persisted.
type Facet struct {
	Rows  []FacetRow `json:"rows"`
	Total int        `json:"total"`
	Min   *float64   `json:"min,omitempty"`
	Max   *float64   `json:"max,omitempty"`
}

// computeFacets builds the facet map for every filterable column over rows.
func computeFacets(rows []model.PriceRow) map[string]Facet {
	counts := make(map[string]map[any]int, len(facetColumns))
	for _, col := range facetColumns {
		counts[col] = make(map[any]int)
	}

	for i := range rows {
		row := &rows[i]
		for _, col := range facetColumns {
			if v, ok := facetValue(row, col); ok {
				counts[col][v]++
			}
		}
	}

	facets := make(map[string]Facet, len(counts))
	for col, valueCounts := range counts {
		if len(valueCounts) == 0 {
			continue
		}
		facet := Facet{Rows: make([]FacetRow, 0, len(valueCounts))}
		for v, n := range valueCounts {
			if f, ok := v.(float64); ok {
				if facet.Min == nil || f < *facet.Min {
					min := f
					facet.Min = &min
				}
				if facet.Max == nil || f > *facet.Max {
					max := f
					facet.Max = &max
				}
			}
			facet.Rows = append(facet.Rows, FacetRow{Value: v, Total: n})
			facet.Total += n
		}
		sortFacetRows(facet.Rows)
		facets[col] = facet
	}
	return facets
}

// mergeFacets combines the two facet passes: slider columns keep the bounds
// computed over the without-slider row-set (so dragging a slider does not
// move its own min/max), every other column takes the fully filtered counts.
func mergeFacets(withoutSlider, filtered map[string]Facet) map[string]Facet {
	merged := make(map[string]Facet, len(withoutSlider))
	for col, f := range withoutSlider {
		merged[col] = f
	}
	for col, f := range filtered {
		if isSliderColumn(col) {
			continue
		}
		merged[col] = f
	}
	return merged
}

func isSliderColumn(col string) bool {
	for _, s := range sliderColumns {
		if s == col {
			return true
		}
	}
	return false
}

func facetValue(row *model.PriceRow, col string) (any, bool) {
	switch col {
	case "provider":
		return nonEmpty(row.Provider)
	case "gpu_model":
		return nonEmpty(row.GPUModel)
	case "observed_at":
		if row.ObservedAt.IsZero() {
			return nil, false
		}
		return row.ObservedAt.UTC().Format(time.RFC3339), true
	case "gpu_count":
		return floatValue(intValue(row.GPUCount))
	case "vram_gb":
		return floatValue(row.VRAMGB)
	case "vcpus":
		return floatValue(intValue(row.VCPUs))
	case "system_ram_gb":
		return floatValue(row.SystemRAMGB)
	case "price_hour_usd":
		if p, ok := row.EffectiveHourlyPrice(); ok {
			return p, true
		}
		return nil, false
	}
	return nil, false
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func floatValue(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// sortFacetRows orders rows deterministically: numeric values ascending,
// strings lexicographically.
func sortFacetRows(rows []FacetRow) {
	sort.Slice(rows, func(i, j int) bool {
		fi, iNum := rows[i].Value.(float64)
		fj, jNum := rows[j].Value.(float64)
		if iNum && jNum {
			return fi < fj
		}
		si, _ := rows[i].Value.(string)
		sj, _ := rows[j].Value.(string)
		return si < sj
	})
}
