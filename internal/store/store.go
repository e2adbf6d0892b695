// Package store persists geocoder answers so repeated lookups for the same
// neighbourhood or query skip the rate-limited upstream.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/db"
)

// Store is a keyed blob cache with per-entry expiry. It satisfies
// geocode.Cache.
type Store interface {
	// GetGeocode returns the cached blob, or nil when absent or expired.
	GetGeocode(ctx context.Context, key string) ([]byte, error)
	// SetGeocode upserts a blob. A non-positive ttl never expires.
	SetGeocode(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// DeleteExpired purges expired entries and reports how many were removed.
	DeleteExpired(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open creates and migrates the store for driver. DriverNone returns a nil
// Store and no error.
func Open(ctx context.Context, driver, dsn string, poolCfg *db.PoolConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case DriverNone, "":
		return nil, nil
	case DriverSQLite:
		st, err = NewSQLite(dsn)
	case DriverPostgres:
		st, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
