package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/floodwatch/internal/model"
)

// defaultCellLevel caches reverse answers per S2 level-16 cell (~150 m).
const defaultCellLevel = 16

// Cache stores raw geocoder answers by key.
type Cache interface {
	GetGeocode(ctx context.Context, key string) ([]byte, error)
	SetGeocode(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// reverseKey buckets nearby points into the same S2 cell so a marker nudged a
// few metres reuses the cached answer.
func reverseKey(c model.Coordinates, level int) string {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng)).Parent(level)
	return "rev:" + cell.ToToken()
}

// searchKey returns "q:" plus the SHA-256 hex of the case-folded query.
func searchKey(query string) string {
	normalized := strings.Join(strings.Fields(cases.Fold().String(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("q:%x", h)
}

func cacheGet[T any](ctx context.Context, c Cache, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.GetGeocode(ctx, key)
	if err != nil {
		zap.L().Debug("geocode: cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	v, err := decodeCached[T](data)
	if err != nil {
		zap.L().Debug("geocode: cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	zap.L().Debug("geocode cache hit", zap.String("key", key))
	return v, true
}

func cacheSet(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.SetGeocode(ctx, key, data, ttl); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// GetGeocode implements Cache. Missing or expired keys return nil, nil.
func (m *MemoryCache) GetGeocode(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	return e.data, nil
}

// SetGeocode implements Cache. A non-positive ttl never expires.
func (m *MemoryCache) SetGeocode(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}
