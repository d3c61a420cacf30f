// Package model defines the canonical pricing data structures shared by the
// snapshot store, the query engine and the HTTP layer.
package model

import "time"

// RowClass tags what kind of offering a row describes.
type RowClass string

const (
	ClassGPU     RowClass = "GPU"
	ClassCPU     RowClass = "CPU"
	ClassService RowClass = "service"
)

// PriceRow is one observed pricing line for one hardware configuration from
// one provider. Fields vary by provider, so most are optional; accessor
// functions below resolve the provider-specific alternatives. Rows are
// immutable once stored — a new scrape produces a whole new row set.
type PriceRow struct {
	UUID       string    `json:"uuid,omitempty"` // volatile per-observation id, set at flatten time
	Provider   string    `json:"provider"`
	SourceURL  string    `json:"source_url,omitempty"`
	ObservedAt time.Time `json:"observed_at"`

	InstanceID string `json:"instance_id,omitempty"`
	Item       string `json:"item,omitempty"` // some providers key rows by item name instead of instance id
	SKU        string `json:"sku,omitempty"`
	Region     string `json:"region,omitempty"`
	Zone       string `json:"zone,omitempty"`

	// Hardware
	GPUModel       string   `json:"gpu_model,omitempty"`
	GPUCount       *int     `json:"gpu_count,omitempty"`
	VRAMGB         *float64 `json:"vram_gb,omitempty"`
	VCPUs          *int     `json:"vcpus,omitempty"`
	SystemRAMGB    *float64 `json:"system_ram_gb,omitempty"`
	LocalStorageTB *float64 `json:"local_storage_tb,omitempty"`
	CPUModel       string   `json:"cpu_model,omitempty"`
	CPUType        string   `json:"cpu_type,omitempty"`
	Type           string   `json:"type,omitempty"` // "virtual machine", "bare metal", …

	// Pricing
	PriceUnit     string   `json:"price_unit,omitempty"` // "hour" | "month" | "gb_month"
	PriceHourUSD  *float64 `json:"price_hour_usd,omitempty"`
	PriceMonthUSD *float64 `json:"price_month_usd,omitempty"`
	PriceUSD      *float64 `json:"price_usd,omitempty"` // generic fallback emitted by some providers
	RawCost       string   `json:"raw_cost,omitempty"`  // original scraped text, kept for audit
	BillingNotes  string   `json:"billing_notes,omitempty"`

	// Flags
	Class   RowClass `json:"class"`
	Network string   `json:"network,omitempty"`
	Spot    *bool    `json:"spot,omitempty"`
}

// EffectiveHourlyPrice returns the first populated of price_hour_usd and
// price_usd. Rows priced only per month have no hourly price.
func (r *PriceRow) EffectiveHourlyPrice() (float64, bool) {
	if r.PriceHourUSD != nil {
		return *r.PriceHourUSD, true
	}
	if r.PriceUSD != nil {
		return *r.PriceUSD, true
	}
	return 0, false
}

// InstanceKey returns the identifier used for point lookups, falling back
// across the provider-specific alternatives. Empty when the row has neither.
func (r *PriceRow) InstanceKey() string {
	if r.InstanceID != "" {
		return r.InstanceID
	}
	return r.Item
}

// ProviderSnapshot is the latest accepted row-set for one provider. A
// snapshot is replaced as a whole, never partially mutated.
type ProviderSnapshot struct {
	Provider    string     `json:"provider"`
	Version     int64      `json:"version"`
	LastUpdated time.Time  `json:"last_updated"`
	Rows        []PriceRow `json:"rows"`
}

// ProviderResult is the only shape the snapshot store accepts as input:
// the output of one normalizer run over one provider's raw pricing source.
type ProviderResult struct {
	Provider   string     `json:"provider"`
	Rows       []PriceRow `json:"rows"`
	ObservedAt time.Time  `json:"observedAt"`
	SourceHash string     `json:"sourceHash"` // hash of the raw scraped payload, for change detection
}
