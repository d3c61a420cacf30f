package query_test

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"gpuboard/pricing-service/internal/query"
)

func parse(t *testing.T, raw string) query.Request {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", raw, err)
	}
	return query.ParseRequest(values)
}

func TestParseRequest_Sliders(t *testing.T) {
	req := parse(t, "vram_gb=10-20&gpu_count=8&price_hour_usd=0.5-2.5")

	if got := req.Filters.VRAMGB; len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Errorf("vram_gb = %v, want [10 20]", got)
	}
	if got := req.Filters.GPUCount; len(got) != 1 || got[0] != 8 {
		t.Errorf("gpu_count = %v, want [8]", got)
	}
	if got := req.Filters.PriceHourUSD; len(got) != 2 || got[0] != 0.5 || got[1] != 2.5 {
		t.Errorf("price_hour_usd = %v, want [0.5 2.5]", got)
	}
}

func TestParseRequest_MalformedSliderDropped(t *testing.T) {
	req := parse(t, "vram_gb=10-20-30&gpu_count=abc")
	if req.Filters.VRAMGB != nil {
		t.Errorf("3-element slider must parse to no constraint, got %v", req.Filters.VRAMGB)
	}
	if req.Filters.GPUCount != nil {
		t.Errorf("non-numeric slider must parse to no constraint, got %v", req.Filters.GPUCount)
	}
}

func TestParseRequest_ProviderSetVsSubstring(t *testing.T) {
	set := parse(t, "provider=coreweave,nebius")
	if len(set.Filters.Providers) != 2 || set.Filters.Provider != "" {
		t.Errorf("comma list must parse as a set filter, got %+v", set.Filters)
	}

	sub := parse(t, "provider=core")
	if sub.Filters.Provider != "core" || sub.Filters.Providers != nil {
		t.Errorf("bare value must parse as a substring filter, got %+v", sub.Filters)
	}
}

func TestParseRequest_DateRange(t *testing.T) {
	from := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	req := parse(t, url.Values{
		"observed_at": {formatMillisRange(from, to)},
	}.Encode())

	got := req.Filters.ObservedAt
	if len(got) != 2 || !got[0].Equal(from) || !got[1].Equal(to) {
		t.Errorf("observed_at = %v, want [%v %v]", got, from, to)
	}
}

func TestParseRequest_Sort(t *testing.T) {
	req := parse(t, "sort=price_hour_usd.desc")
	if req.Sort == nil || req.Sort.ID != "price_hour_usd" || !req.Sort.Desc {
		t.Errorf("sort = %+v, want price_hour_usd desc", req.Sort)
	}

	asc := parse(t, "sort=vram_gb.asc")
	if asc.Sort == nil || asc.Sort.Desc {
		t.Errorf("sort = %+v, want vram_gb asc", asc.Sort)
	}

	if parse(t, "").Sort != nil {
		t.Error("absent sort must parse to nil")
	}
}

func TestParseRequest_PaginationAndFavorites(t *testing.T) {
	req := parse(t, "start=40&size=20&favorites=true")
	if req.PageStart != 40 || req.PageSize != 20 || !req.FavoritesMode {
		t.Errorf("pagination = %+v", req)
	}

	bad := parse(t, "start=-5&size=oops")
	if bad.PageStart != 0 || bad.PageSize != 0 {
		t.Errorf("invalid pagination must fall back to defaults, got %+v", bad)
	}
}

func formatMillisRange(from, to time.Time) string {
	return strconv.FormatInt(from.UnixMilli(), 10) + "-" + strconv.FormatInt(to.UnixMilli(), 10)
}
