package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultUserAgent = "gpuboard-pricing-bot/1.0"
	fetchTimeout     = 20 * time.Second
)

// Fetcher retrieves a provider's raw pricing page or API payload. Parsing
// the payload into rows is the normalizer's job; the fetcher only hands back
// the bytes plus the content hash the snapshot store uses for change
// detection.
type Fetcher struct {
	client *resty.Client
}

// NewFetcher returns a Fetcher with a shared HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: resty.New().
			SetTimeout(fetchTimeout).
			SetHeader("User-Agent", defaultUserAgent).
			SetHeader("Accept", "text/html,application/json"),
	}
}

// Fetch GETs url and returns the response body and its hex sha256. The hash
// is computed over the raw bytes, so any upstream change — even field
// reordering — reads as new content. Over-writing on cosmetic reorders is
// the accepted tradeoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return nil, "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}
	body := resp.Body()
	sum := sha256.Sum256(body)
	return body, hex.EncodeToString(sum[:]), nil
}
