// Package identity derives the two row identities the system depends on.
//
// VolatileID is unique per observation: it hashes the full row content plus
// the scrape timestamp, so it changes on every scrape even when the offering
// did not. StableConfigKey is the opposite: it encodes only the invariant
// hardware identity of the offering, so a user's favorite saved against one
// scrape still matches the re-scraped row. Favorites correctness depends
// entirely on StableConfigKey, which is why it lives in its own package with
// its own tests.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gpuboard/pricing-service/internal/model"
)

// VolatileID returns the hex sha256 of the canonical JSON document
// {"provider":…,"observed_at":…,"row":…}. encoding/json emits struct fields
// in declaration order with empty optionals omitted, so byte-identical input
// always yields the identical id, and any field or timestamp change yields a
// different one.
//
// The row's own UUID field is cleared before hashing so the id does not
// depend on whether a previous flatten pass already annotated the row.
func VolatileID(provider string, observedAt time.Time, row model.PriceRow) string {
	row.UUID = ""
	doc := struct {
		Provider   string         `json:"provider"`
		ObservedAt string         `json:"observed_at"`
		Row        model.PriceRow `json:"row"`
	}{
		Provider:   provider,
		ObservedAt: observedAt.UTC().Format(time.RFC3339Nano),
		Row:        row,
	}
	// Marshalling a struct of strings and numbers cannot fail.
	payload, _ := json.Marshal(doc)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StableConfigKey returns the cross-scrape identity of a commercial offering:
// provider, hardware model, GPU count, VRAM and machine type, lowercased,
// whitespace-trimmed, empty components dropped, joined with ":". Price and
// timestamps are deliberately excluded.
//
// Example: "coreweave:nvidia h100:8x:80gb:virtual machine"
//
// This is a structured string rather than a hash so operators can diff keys
// straight from logs when a favorite fails to match. The component list and
// delimiter are frozen: changing either invalidates every stored favorite.
func StableConfigKey(provider string, row model.PriceRow) string {
	hwModel := row.GPUModel
	if hwModel == "" {
		hwModel = row.Item
	}
	if hwModel == "" {
		hwModel = row.SKU
	}

	parts := make([]string, 0, 5)
	if p := normalize(provider); p != "" {
		parts = append(parts, p)
	}
	if m := normalize(hwModel); m != "" {
		parts = append(parts, m)
	}
	if row.GPUCount != nil {
		parts = append(parts, fmt.Sprintf("%dx", *row.GPUCount))
	}
	if row.VRAMGB != nil {
		parts = append(parts, fmt.Sprintf("%ggb", *row.VRAMGB))
	}
	if t := normalize(row.Type); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, ":")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
