package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubShipmentStore struct {
	mu          sync.Mutex
	shipment    core.ActiveShipment
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubShipmentStore) Upsert(_ context.Context, shipment core.ActiveShipment) (core.ActiveShipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return core.ActiveShipment{}, s.upsertErr
	}
	s.shipment = shipment
	return shipment, nil
}

func (s *stubShipmentStore) GetByShipmentID(_ context.Context, _ string) (core.ActiveShipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.ActiveShipment{}, s.getErr
	}
	return s.shipment, nil
}

func newTestShipmentCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedShipmentStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubShipmentStore{
		shipment: core.ActiveShipment{
			ID:         "row-1",
			ShipmentID: "ship-1",
			Status:     "in_transit",
		},
	}
	store, err := NewCachedShipmentStore(base, newTestShipmentCacheService(t))
	if err != nil {
		t.Fatalf("new cached shipment store: %v", err)
	}

	if _, err := store.GetByShipmentID(context.Background(), "ship-1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.GetByShipmentID(context.Background(), "ship-1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedShipmentStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	base := &stubShipmentStore{
		shipment: core.ActiveShipment{
			ID:         "row-1",
			ShipmentID: "ship-2",
			Status:     "in_transit",
		},
	}
	store, err := NewCachedShipmentStore(base, newTestShipmentCacheService(t))
	if err != nil {
		t.Fatalf("new cached shipment store: %v", err)
	}

	if _, err := store.GetByShipmentID(context.Background(), "ship-2"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.getCalls)
	}

	if _, err := store.Upsert(context.Background(), core.ActiveShipment{
		ID:         "row-1",
		ShipmentID: "ship-2",
		Status:     "delivered",
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected base upsert call count=1, got %d", base.upsertCalls)
	}

	shipment, err := store.GetByShipmentID(context.Background(), "ship-2")
	if err != nil {
		t.Fatalf("get after upsert invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if shipment.Status != "delivered" {
		t.Fatalf("expected refreshed status delivered, got %q", shipment.Status)
	}
}

func TestShipmentCacheKey_Contract(t *testing.T) {
	key, err := ShipmentCacheKey("ship/alpha 1")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "courier-gateway::active_shipment::v1::ship%2Falpha%201"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := ShipmentCacheKey("  "); err == nil {
		t.Fatalf("expected error for blank shipment id")
	}
}

func TestCachedShipmentStore_PropagatesBaseErrors(t *testing.T) {
	baseErr := errors.New("sqlstore: shipment \"missing\" not found")
	base := &stubShipmentStore{getErr: baseErr}
	store, err := NewCachedShipmentStore(base, newTestShipmentCacheService(t))
	if err != nil {
		t.Fatalf("new cached shipment store: %v", err)
	}

	if _, err := store.GetByShipmentID(context.Background(), "missing"); !errors.Is(err, baseErr) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}
