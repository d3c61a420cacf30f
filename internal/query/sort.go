package query

import (
	"sort"
	"strings"

	"gpuboard/pricing-service/internal/model"
)

// SortSpec is the single (column, direction) pair a query sorts by.
type SortSpec struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// sortRows orders rows by spec's column. Rows missing the column always sort
// last regardless of direction, which is why presence is decided before the
// direction flip. Equal rows are tie-broken by volatile id ascending —
// mandatory, because the engine is stateless between requests and offset
// pagination only stays non-overlapping when repeated runs over the same
// data produce the exact same order.
func sortRows(rows []model.PriceRow, spec *SortSpec) {
	if spec == nil || spec.ID == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		av, aok := columnValue(a, spec.ID)
		bv, bok := columnValue(b, spec.ID)
		if aok != bok {
			return aok
		}
		c := 0
		if aok {
			c = compareValues(av, bv)
		}
		if c == 0 {
			return a.UUID < b.UUID
		}
		if spec.Desc {
			return c > 0
		}
		return c < 0
	})
}

// columnValue resolves a sortable column to its value for one row. Columns
// with provider-variant alternatives (price) are normalized here via the
// model accessors before comparison.
func columnValue(row *model.PriceRow, col string) (any, bool) {
	switch col {
	case "gpu_count":
		return floatValue(intValue(row.GPUCount))
	case "vram_gb":
		return floatValue(row.VRAMGB)
	case "vcpus":
		return floatValue(intValue(row.VCPUs))
	case "system_ram_gb":
		return floatValue(row.SystemRAMGB)
	case "local_storage_tb":
		return floatValue(row.LocalStorageTB)
	case "price_hour_usd":
		if p, ok := row.EffectiveHourlyPrice(); ok {
			return p, true
		}
		return nil, false
	case "price_month_usd":
		return floatValue(row.PriceMonthUSD)
	case "observed_at":
		if row.ObservedAt.IsZero() {
			return nil, false
		}
		return float64(row.ObservedAt.UnixNano()), true
	case "provider":
		return nonEmpty(row.Provider)
	case "gpu_model":
		return nonEmpty(row.GPUModel)
	case "instance_id":
		return nonEmpty(row.InstanceID)
	case "item":
		return nonEmpty(row.Item)
	case "region":
		return nonEmpty(row.Region)
	case "type":
		return nonEmpty(row.Type)
	case "cpu_model":
		return nonEmpty(row.CPUModel)
	}
	return nil, false
}

func compareValues(a, b any) int {
	if af, ok := a.(float64); ok {
		bf, _ := b.(float64)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
}
