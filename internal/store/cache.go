package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinepos/internal/model"

	"github.com/redis/go-redis/v9"
)

// cacheTTL is the freshness window for a cached order snapshot.
const cacheTTL = 5 * time.Minute

// Snapshot is the durable form of LastSeenOrders for one (theater, window)
// key, shared across agent restarts within the TTL.
type Snapshot struct {
	Orders  []model.NormalizedOrder `json:"orders"`
	Summary model.Summary           `json:"summary"`
	SavedAt time.Time               `json:"savedAt"`
}

// OrderCache is the Redis-backed durable cache of recent order snapshots.
// Writes are last-writer-wins; the TTL bounds staleness.
type OrderCache struct {
	rdb *redis.Client
}

func NewOrderCache(rdb *redis.Client) *OrderCache { return &OrderCache{rdb: rdb} }

func cacheKey(theaterID string, w model.DateWindow) string {
	return fmt.Sprintf("onlineOrderHistory_%s_%s", theaterID, w.Key())
}

// Load returns the cached snapshot for the key, or nil when absent/expired.
func (c *OrderCache) Load(ctx context.Context, theaterID string, w model.DateWindow) (*Snapshot, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(theaterID, w)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("order cache: load: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt entry is treated as a miss, not a failure.
		return nil, nil
	}
	return &snap, nil
}

// Save stores the snapshot under the key with the five-minute TTL.
func (c *OrderCache) Save(ctx context.Context, theaterID string, w model.DateWindow, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("order cache: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(theaterID, w), data, cacheTTL).Err(); err != nil {
		return fmt.Errorf("order cache: save: %w", err)
	}
	return nil
}
