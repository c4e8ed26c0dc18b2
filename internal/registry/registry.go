// Package registry is the ledger's view of the external vehicle registry:
// a cached existence lookup over the local vehicles table and the job that
// keeps that table in sync with the upstream service.
package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// VehicleLookup reports whether a vehicle is present in the read model.
type VehicleLookup interface {
	VehicleExists(ctx context.Context, id int64) (bool, error)
}

// Registry answers vehicle existence checks. Only positive answers are
// cached, so a vehicle registered upstream becomes visible on the next sync.
type Registry struct {
	lookup VehicleLookup
	known  *cache.Cache
}

// New creates a Registry whose positive answers live for ttl.
func New(lookup VehicleLookup, ttl time.Duration) *Registry {
	return &Registry{
		lookup: lookup,
		known:  cache.New(ttl, 2*ttl),
	}
}

// Exists implements ledger.VehicleRegistry.
func (r *Registry) Exists(ctx context.Context, id int64) (bool, error) {
	key := strconv.FormatInt(id, 10)
	if _, ok := r.known.Get(key); ok {
		return true, nil
	}
	ok, err := r.lookup.VehicleExists(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		r.known.SetDefault(key, struct{}{})
	}
	return ok, nil
}
