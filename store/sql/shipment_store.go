package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ShipmentStore maintains the active shipment projection keyed by
// shipment id.
type ShipmentStore struct {
	db   *bun.DB
	repo repository.Repository[*activeShipmentRecord]
}

func NewShipmentStore(db *bun.DB) (*ShipmentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activeShipmentRecord](db, activeShipmentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid shipment repository wiring: %w", err)
		}
	}
	return &ShipmentStore{db: db, repo: repo}, nil
}

// Upsert applies one event's projection. Re-applying the same event is
// harmless: the row converges to the same values. An empty incoming order
// id never clobbers a previously recorded one.
func (s *ShipmentStore) Upsert(ctx context.Context, shipment core.ActiveShipment) (core.ActiveShipment, error) {
	if s == nil || s.db == nil {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: shipment store is not configured")
	}
	shipment.ShipmentID = strings.TrimSpace(shipment.ShipmentID)
	if shipment.ShipmentID == "" {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: shipment id is required")
	}
	if strings.TrimSpace(shipment.Status) == "" {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: shipment status is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(shipment.ID) == "" {
		shipment.ID = uuid.NewString()
	}
	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = now
	}
	shipment.UpdatedAt = now
	if shipment.LastEventAt.IsZero() {
		shipment.LastEventAt = now
	}

	record := newActiveShipmentRecord(shipment)
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (shipment_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("order_id = CASE WHEN EXCLUDED.order_id = '' THEN order_id ELSE EXCLUDED.order_id END").
		Set("last_event_id = EXCLUDED.last_event_id").
		Set("last_event_type = EXCLUDED.last_event_type").
		Set("last_event_at = EXCLUDED.last_event_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.ActiveShipment{}, err
	}
	return s.GetByShipmentID(ctx, shipment.ShipmentID)
}

func (s *ShipmentStore) GetByShipmentID(ctx context.Context, shipmentID string) (core.ActiveShipment, error) {
	if s == nil || s.db == nil {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: shipment store is not configured")
	}
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return core.ActiveShipment{}, fmt.Errorf("sqlstore: shipment id is required")
	}
	record := &activeShipmentRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.shipment_id = ?", shipmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ActiveShipment{}, fmt.Errorf("sqlstore: shipment %q not found", shipmentID)
		}
		return core.ActiveShipment{}, err
	}
	return record.toDomain(), nil
}
