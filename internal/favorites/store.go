// Package favorites persists the per-user favorites overlay: a set of
// stable configuration keys per user id. The core never invents its own
// identity here — keys are produced by the identity package, and this store
// only associates them with users.
package favorites

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads and writes the user_favorites table:
//
//	CREATE TABLE user_favorites (
//	    id         UUID PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    config_key TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    UNIQUE (user_id, config_key)
//	);
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a configured Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// List returns the user's favorite stable configuration keys as a set.
func (s *Store) List(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT config_key FROM user_favorites WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// Add associates keys with the user, ignoring duplicates via the unique
// (user_id, config_key) constraint.
func (s *Store) Add(ctx context.Context, userID string, keys []string) error {
	for _, key := range dedup(keys) {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO user_favorites (id, user_id, config_key)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, config_key) DO NOTHING`,
			uuid.NewString(), userID, key,
		)
		if err != nil {
			return fmt.Errorf("add favorite %q: %w", key, err)
		}
	}
	return nil
}

// Remove deletes the given keys from the user's favorites. Keys the user
// never favorited are ignored.
func (s *Store) Remove(ctx context.Context, userID string, keys []string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_favorites WHERE user_id = $1 AND config_key = ANY($2)`,
		userID, dedup(keys),
	)
	if err != nil {
		return fmt.Errorf("remove favorites: %w", err)
	}
	return nil
}

func dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
