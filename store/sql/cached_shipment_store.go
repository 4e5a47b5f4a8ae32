package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-courier-gateway/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const shipmentCacheKeyPrefix = "courier-gateway::active_shipment::v1"

// CachedShipmentStore fronts the shipment projection with a read-through
// cache. Upserts invalidate so readers never see a stale projection for
// longer than one write.
type CachedShipmentStore struct {
	base  core.ShipmentStore
	cache repositorycache.CacheService
}

func NewCachedShipmentStore(
	base core.ShipmentStore,
	cacheService repositorycache.CacheService,
) (*CachedShipmentStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base shipment store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: shipment cache service is required")
	}
	return &CachedShipmentStore{base: base, cache: cacheService}, nil
}

// ShipmentCacheKey returns the deterministic cache key contract for
// shipment reads: courier-gateway::active_shipment::v1::<shipment_id>
// with the id URL-path escaped.
func ShipmentCacheKey(shipmentID string) (string, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return "", fmt.Errorf("sqlstore: shipment id is required")
	}
	return shipmentCacheKeyPrefix + "::" + url.PathEscape(shipmentID), nil
}

func (s *CachedShipmentStore) Upsert(ctx context.Context, shipment core.ActiveShipment) (core.ActiveShipment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: cached shipment store is not configured")
	}
	updated, err := s.base.Upsert(ctx, shipment)
	if err != nil {
		return core.ActiveShipment{}, err
	}
	cacheKey, err := ShipmentCacheKey(updated.ShipmentID)
	if err != nil {
		return core.ActiveShipment{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.ActiveShipment{}, err
	}
	return updated, nil
}

func (s *CachedShipmentStore) GetByShipmentID(ctx context.Context, shipmentID string) (core.ActiveShipment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: cached shipment store is not configured")
	}
	cacheKey, err := ShipmentCacheKey(shipmentID)
	if err != nil {
		return core.ActiveShipment{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ActiveShipment, error) {
		return s.base.GetByShipmentID(ctx, shipmentID)
	})
}

var _ core.ShipmentStore = (*CachedShipmentStore)(nil)
