package query

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// URL grammar, shared with the table UI:
//
//	slider ranges    vram_gb=10-20      (single value = exact match)
//	value sets       provider=coreweave,nebius
//	date ranges      observed_at=1756500000000-1756600000000  (epoch millis)
//	sort             sort=price_hour_usd.desc
//	pagination       start=40&size=40
//	favorites mode   favorites=true
//
// Parsing is forgiving by contract: a malformed value is logged and treated
// as "no constraint" so one bad parameter never fails the page.
const (
	arrayDelimiter  = ","
	sliderDelimiter = "-"
	rangeDelimiter  = "-"
	sortDelimiter   = "."
)

// ParseRequest builds a Request from URL query parameters.
func ParseRequest(values url.Values) Request {
	req := Request{
		Filters: Filters{
			GPUModel:     values.Get("gpu_model"),
			GPUCount:     parseSlider(values.Get("gpu_count"), "gpu_count"),
			VRAMGB:       parseSlider(values.Get("vram_gb"), "vram_gb"),
			VCPUs:        parseSlider(values.Get("vcpus"), "vcpus"),
			SystemRAMGB:  parseSlider(values.Get("system_ram_gb"), "system_ram_gb"),
			PriceHourUSD: parseSlider(values.Get("price_hour_usd"), "price_hour_usd"),
			ObservedAt:   parseDateRange(values.Get("observed_at")),
		},
		Sort:          parseSort(values.Get("sort")),
		PageStart:     parseInt(values.Get("start"), 0),
		PageSize:      parseInt(values.Get("size"), 0),
		FavoritesMode: values.Get("favorites") == "true",
	}

	// A provider list is a set filter; a bare value is a substring match.
	if p := values.Get("provider"); p != "" {
		if strings.Contains(p, arrayDelimiter) {
			req.Filters.Providers = splitNonEmpty(p, arrayDelimiter)
		} else {
			req.Filters.Provider = p
		}
	}
	return req
}

func parseSort(raw string) *SortSpec {
	if raw == "" {
		return nil
	}
	id, dir, _ := strings.Cut(raw, sortDelimiter)
	if id == "" {
		return nil
	}
	return &SortSpec{ID: id, Desc: dir == "desc"}
}

func parseSlider(raw, column string) []float64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sliderDelimiter)
	if len(parts) > 2 {
		slog.Warn("ignoring malformed slider parameter", "column", column, "value", raw)
		return nil
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			slog.Warn("ignoring malformed slider parameter", "column", column, "value", raw)
			return nil
		}
		out = append(out, v)
	}
	return out
}

func parseDateRange(raw string) []time.Time {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, rangeDelimiter)
	if len(parts) > 2 {
		slog.Warn("ignoring malformed date parameter", "value", raw)
		return nil
	}
	out := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		millis, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			slog.Warn("ignoring malformed date parameter", "value", raw)
			return nil
		}
		out = append(out, time.UnixMilli(millis).UTC())
	}
	return out
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func splitNonEmpty(raw, sep string) []string {
	var out []string
	for _, p := range strings.Split(raw, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
