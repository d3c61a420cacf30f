// Package cache implements the versioned pricing snapshot store on Redis.
//
// Per provider it keeps: the latest snapshot, a monotonic version counter,
// the content hash of the raw scraped payload (for change detection), a
// per-instance point-lookup index, and an archive of replaced snapshots
// eligible for retention trimming. Provider names are registered in a set on
// first write so readers never scan the keyspace.
//
// Layout:
//
//	pricing:providers                     SET of provider names
//	pricing:{p}:latest                    JSON ProviderSnapshot
//	pricing:{p}:version                   integer, starts at 0
//	pricing:{p}:hash                      content hash of the raw payload
//	pricing:{p}:by_instance:{key}         JSON PriceRow
//	pricing:{p}:history:{version}         replaced JSON ProviderSnapshot
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gpuboard/pricing-service/internal/model"
)

const keyPrefix = "pricing"

// ErrNotFound is returned when a provider or instance has no stored data.
var ErrNotFound = errors.New("pricing data not found")

// Store persists provider snapshots in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store backed by rdb.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func providersKey() string       { return keyPrefix + ":providers" }
func latestKey(p string) string  { return fmt.Sprintf("%s:%s:latest", keyPrefix, p) }
func versionKey(p string) string { return fmt.Sprintf("%s:%s:version", keyPrefix, p) }
func hashKey(p string) string    { return fmt.Sprintf("%s:%s:hash", keyPrefix, p) }
func instanceKey(p, id string) string {
	return fmt.Sprintf("%s:%s:by_instance:%s", keyPrefix, p, id)
}
func historyKey(p string, v int64) string {
	return fmt.Sprintf("%s:%s:history:%d", keyPrefix, p, v)
}

// Put stores the result of one normalizer run. When force is false and the
// content hash matches the stored hash, the call is a no-op and returns
// updated=false with the current version. Otherwise the snapshot, hash,
// version counter and per-instance index are replaced via one pipelined
// multi-key write, and the previous snapshot is archived for retention.
//
// The pipeline is not a transaction: concurrent writes to the same provider
// are last-write-wins, and a concurrent reader may briefly observe a new
// snapshot alongside the old hash. Callers serialize per-provider writes.
func (s *Store) Put(ctx context.Context, res model.ProviderResult, force bool) (bool, int64, error) {
	currentHash, err := s.rdb.Get(ctx, hashKey(res.Provider)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, fmt.Errorf("pricing cache unavailable: read hash: %w", err)
	}

	currentVersion, haveVersion, err := s.currentVersion(ctx, res.Provider)
	if err != nil {
		return false, 0, err
	}

	if !force && currentHash != "" && currentHash == res.SourceHash {
		return false, currentVersion, nil
	}

	newVersion := int64(0)
	if haveVersion {
		newVersion = currentVersion + 1
	}

	snapshot := model.ProviderSnapshot{
		Provider:    res.Provider,
		Version:     newVersion,
		LastUpdated: res.ObservedAt,
		Rows:        res.Rows,
	}
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return false, 0, fmt.Errorf("pricing cache unavailable: marshal snapshot: %w", err)
	}

	// Previous snapshot: archived for retention, and its instance index
	// entries are cleared so the secondary index is replaced as a whole.
	var prev *model.ProviderSnapshot
	if haveVersion {
		p, err := s.GetSnapshot(ctx, res.Provider)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return false, 0, err
		}
		prev = p
	}

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, providersKey(), res.Provider)
		if prev != nil {
			prevJSON, merr := json.Marshal(prev)
			if merr != nil {
				return merr
			}
			pipe.Set(ctx, historyKey(res.Provider, prev.Version), prevJSON, 0)
			for i := range prev.Rows {
				if k := prev.Rows[i].InstanceKey(); k != "" {
					pipe.Del(ctx, instanceKey(res.Provider, k))
				}
			}
		}
		pipe.Set(ctx, latestKey(res.Provider), snapJSON, 0)
		pipe.Set(ctx, versionKey(res.Provider), newVersion, 0)
		pipe.Set(ctx, hashKey(res.Provider), res.SourceHash, 0)
		for i := range res.Rows {
			k := res.Rows[i].InstanceKey()
			if k == "" {
				continue
			}
			rowJSON, merr := json.Marshal(res.Rows[i])
			if merr != nil {
				return merr
			}
			pipe.Set(ctx, instanceKey(res.Provider, k), rowJSON, 0)
		}
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("pricing cache unavailable: write snapshot: %w", err)
	}

	return true, newVersion, nil
}

// GetSnapshot returns the latest snapshot for provider, or ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, provider string) (*model.ProviderSnapshot, error) {
	data, err := s.rdb.Get(ctx, latestKey(provider)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pricing cache unavailable: read snapshot: %w", err)
	}
	var snap model.ProviderSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("pricing cache unavailable: decode snapshot: %w", err)
	}
	return &snap, nil
}

// GetInstance returns the point-lookup record for one instance, bypassing
// the flatten/filter path. ErrNotFound when the provider or instance is
// unknown.
func (s *Store) GetInstance(ctx context.Context, provider, instance string) (*model.PriceRow, error) {
	data, err := s.rdb.Get(ctx, instanceKey(provider, instance)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pricing cache unavailable: read instance: %w", err)
	}
	var row model.PriceRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("pricing cache unavailable: decode instance: %w", err)
	}
	return &row, nil
}

// GetAllSnapshots reads the provider set and bulk-fetches every snapshot.
// A provider registered but missing its snapshot is skipped, not an error.
func (s *Store) GetAllSnapshots(ctx context.Context) ([]model.ProviderSnapshot, error) {
	providers, err := s.ListProviders(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]model.ProviderSnapshot, 0, len(providers))
	for _, p := range providers {
		snap, err := s.GetSnapshot(ctx, p)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

// ListProviders returns the registered provider names, sorted.
func (s *Store) ListProviders(ctx context.Context) ([]string, error) {
	providers, err := s.rdb.SMembers(ctx, providersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("pricing cache unavailable: list providers: %w", err)
	}
	sort.Strings(providers)
	return providers, nil
}

// TrimOlderThan removes archived snapshots whose last_updated is older than
// cutoff and returns the number of rows removed. Only history entries are
// eligible — the current version is never trimmed, even when stale — so the
// call is idempotent and often a no-op.
func (s *Store) TrimOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	providers, err := s.ListProviders(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range providers {
		pattern := fmt.Sprintf("%s:%s:history:*", keyPrefix, p)
		iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			data, err := s.rdb.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("pricing cache unavailable: read history: %w", err)
			}
			var snap model.ProviderSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				// Undecodable archive entries are trimmed regardless of age.
				if err := s.rdb.Del(ctx, key).Err(); err != nil {
					return removed, fmt.Errorf("pricing cache unavailable: trim: %w", err)
				}
				continue
			}
			if snap.LastUpdated.Before(cutoff) {
				if err := s.rdb.Del(ctx, key).Err(); err != nil {
					return removed, fmt.Errorf("pricing cache unavailable: trim: %w", err)
				}
				removed += len(snap.Rows)
			}
		}
		if err := iter.Err(); err != nil {
			return removed, fmt.Errorf("pricing cache unavailable: scan history: %w", err)
		}
	}
	return removed, nil
}

// Stats summarizes the cache for the operational status endpoint.
type Stats struct {
	Providers      []string `json:"providers"`
	TotalInstances int      `json:"totalInstances"`
}

// GetStats returns the registered providers and the total row count across
// all current snapshots.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	snapshots, err := s.GetAllSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	providers, err := s.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for i := range snapshots {
		total += len(snapshots[i].Rows)
	}
	return &Stats{Providers: providers, TotalInstances: total}, nil
}

func (s *Store) currentVersion(ctx context.Context, provider string) (int64, bool, error) {
	raw, err := s.rdb.Get(ctx, versionKey(provider)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pricing cache unavailable: read version: %w", err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("pricing cache unavailable: parse version %q: %w", raw, err)
	}
	return v, true, nil
}
