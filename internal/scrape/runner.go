// Package scrape wires the ingestion write path: registered provider
// normalizers are run on a cron schedule (or on demand), and each result is
// handed to the snapshot store, which decides whether anything changed.
//
// Per-provider HTML parsing lives behind the Source interface — this package
// never looks inside a provider's payload.
package scrape

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"gpuboard/pricing-service/internal/model"
)

// Source is one provider normalizer: it fetches the provider's raw pricing
// source and emits normalized rows plus the content hash of the payload.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (model.ProviderResult, error)
}

// Ingestor is the write side of the snapshot store.
type Ingestor interface {
	Put(ctx context.Context, res model.ProviderResult, force bool) (updated bool, version int64, err error)
}

// Report summarizes one source's run within a scrape cycle.
type Report struct {
	Provider string `json:"provider"`
	Rows     int    `json:"rowsScraped"`
	Updated  bool   `json:"wasUpdated"`
	Version  int64  `json:"version"`
	Error    string `json:"error,omitempty"`
}

// Runner executes scrape cycles over the registered sources.
type Runner struct {
	store   Ingestor
	sources []Source
	cron    *cron.Cron
	spec    string // cron spec, e.g. "@every 15m"
}

// NewRunner creates a Runner that fires every intervalMinutes minutes.
func NewRunner(store Ingestor, sources []Source, intervalMinutes int) *Runner {
	return &Runner{
		store:   store,
		sources: sources,
		cron:    cron.New(cron.WithLogger(cron.DefaultLogger)),
		spec:    fmt.Sprintf("@every %dm", intervalMinutes),
	}
}

// Start registers the cron job and runs one cycle immediately so the cache
// is populated without waiting for the first tick.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		r.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	r.cron.Start()
	log.Printf("[scrape] Cron started — spec: %s, sources: %d", r.spec, len(r.sources))

	go r.RunOnce(ctx)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (r *Runner) Stop() {
	r.cron.Stop()
	log.Println("[scrape] Cron stopped")
}

// RunOnce walks every registered source once. A failing source is reported
// and skipped — it never aborts the cycle or another provider's write.
// Writes are serialized per provider by construction: each provider has one
// source and sources run sequentially.
func (r *Runner) RunOnce(ctx context.Context) []Report {
	log.Printf("[scrape] Cycle started — %d source(s)", len(r.sources))

	reports := make([]Report, 0, len(r.sources))
	for _, src := range r.sources {
		report := Report{Provider: src.Name()}

		res, err := src.Fetch(ctx)
		if err != nil {
			report.Error = err.Error()
			log.Printf("[scrape] Source %s failed: %v — continuing", src.Name(), err)
			reports = append(reports, report)
			continue
		}
		report.Rows = len(res.Rows)

		updated, version, err := r.store.Put(ctx, res, false)
		if err != nil {
			report.Error = err.Error()
			log.Printf("[scrape] Store write for %s failed: %v — continuing", src.Name(), err)
			reports = append(reports, report)
			continue
		}
		report.Updated = updated
		report.Version = version
		reports = append(reports, report)
	}

	updated := 0
	failed := 0
	for _, rep := range reports {
		if rep.Updated {
			updated++
		}
		if rep.Error != "" {
			failed++
		}
	}
	log.Printf("[scrape] Cycle done — sources=%d updated=%d failed=%d", len(reports), updated, failed)
	return reports
}
