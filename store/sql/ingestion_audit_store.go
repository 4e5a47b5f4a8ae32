package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IngestionAuditStore is the append-only admission trail.
type IngestionAuditStore struct {
	db   *bun.DB
	repo repository.Repository[*ingestionAuditRecord]
}

func NewIngestionAuditStore(db *bun.DB) (*IngestionAuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ingestionAuditRecord](db, ingestionAuditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ingestion audit repository wiring: %w", err)
		}
	}
	return &IngestionAuditStore{db: db, repo: repo}, nil
}

func (s *IngestionAuditStore) RecordAccepted(ctx context.Context, entry core.IngestionAuditEntry) error {
	return s.record(ctx, entry, core.AuditOutcomeAccepted)
}

func (s *IngestionAuditStore) RecordRejected(ctx context.Context, entry core.IngestionAuditEntry) error {
	return s.record(ctx, entry, core.AuditOutcomeRejected)
}

func (s *IngestionAuditStore) RecordEnqueueFailure(ctx context.Context, entry core.IngestionAuditEntry) error {
	return s.record(ctx, entry, core.AuditOutcomeEnqueueFailure)
}

func (s *IngestionAuditStore) record(ctx context.Context, entry core.IngestionAuditEntry, outcome string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: ingestion audit store is not configured")
	}
	record := newIngestionAuditRecord(entry, outcome, time.Now().UTC())
	record.ID = uuid.NewString()
	_, err := s.repo.Create(ctx, record)
	return err
}
