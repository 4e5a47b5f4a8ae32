package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeadLetterStore persists dead-letter snapshots and drives the review
// lifecycle pending -> reviewed/replayed/closed.
type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterEventRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterEventRecord](db, deadLetterEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter repository wiring: %w", err)
		}
	}
	return &DeadLetterStore{db: db, repo: repo}, nil
}

func (s *DeadLetterStore) Persist(ctx context.Context, event core.DeadLetterEvent) (core.DeadLetterEvent, error) {
	if s == nil || s.repo == nil {
		return core.DeadLetterEvent{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	if strings.TrimSpace(event.IdempotencyKey) == "" {
		return core.DeadLetterEvent{}, fmt.Errorf("sqlstore: idempotency key is required")
	}
	if strings.TrimSpace(event.EventID) == "" {
		return core.DeadLetterEvent{}, fmt.Errorf("sqlstore: event id is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if strings.TrimSpace(event.ReviewStatus) == "" {
		event.ReviewStatus = core.ReviewStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	record := newDeadLetterEventRecord(event)
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.DeadLetterEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *DeadLetterStore) ListPendingReview(ctx context.Context, limit int) ([]core.DeadLetterEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []deadLetterEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.review_status = ?", core.ReviewStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]core.DeadLetterEvent, 0, len(records))
	for i := range records {
		events = append(events, records[i].toDomain())
	}
	return events, nil
}

func (s *DeadLetterStore) MarkReviewed(ctx context.Context, id string, note string) error {
	return s.transitionReview(ctx, id, core.ReviewStatusReviewed, note)
}

func (s *DeadLetterStore) MarkReplayed(ctx context.Context, id string) error {
	return s.transitionReview(ctx, id, core.ReviewStatusReplayed, "")
}

func (s *DeadLetterStore) MarkClosed(ctx context.Context, id string, note string) error {
	return s.transitionReview(ctx, id, core.ReviewStatusClosed, note)
}

func (s *DeadLetterStore) transitionReview(ctx context.Context, id string, status string, note string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: dead letter id is required")
	}
	update := s.db.NewUpdate().
		Model((*deadLetterEventRecord)(nil)).
		Set("review_status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if strings.TrimSpace(note) != "" {
		update = update.Set("review_note = ?", strings.TrimSpace(note))
	}
	result, err := update.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: dead letter %q not found", id)
	}
	return nil
}
