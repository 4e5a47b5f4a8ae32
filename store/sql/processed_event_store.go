package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProcessedEventStore persists the idempotency ledger. All transitions key
// off idempotency_key; the claim is a single conditional update so two
// workers can never both win the same delivery.
type ProcessedEventStore struct {
	db   *bun.DB
	repo repository.Repository[*processedEventRecord]
}

func NewProcessedEventStore(db *bun.DB) (*ProcessedEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*processedEventRecord](db, processedEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid processed event repository wiring: %w", err)
		}
	}
	return &ProcessedEventStore{db: db, repo: repo}, nil
}

func (s *ProcessedEventStore) FindByKey(ctx context.Context, key string) (*core.ProcessedEventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlstore: idempotency key is required")
	}
	record := &processedEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// MarkReceived inserts the initial ledger row. A concurrent or replayed
// insert for the same key returns the existing row unchanged.
func (s *ProcessedEventStore) MarkReceived(ctx context.Context, input core.ProcessedEventRecord) (*core.ProcessedEventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.IdempotencyKey == "" {
		return nil, fmt.Errorf("sqlstore: idempotency key is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(input.ID) == "" {
		input.ID = uuid.NewString()
	}
	if strings.TrimSpace(input.Status) == "" {
		input.Status = core.EventStatusReceived
	}
	if input.ReceivedAt.IsZero() {
		input.ReceivedAt = now
	}
	if input.CreatedAt.IsZero() {
		input.CreatedAt = now
	}
	input.UpdatedAt = now

	record := newProcessedEventRecord(input)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, findErr := s.FindByKey(ctx, input.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing == nil {
				return nil, fmt.Errorf("sqlstore: ledger row for key %q vanished after unique violation", input.IdempotencyKey)
			}
			return existing, nil
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// MarkProcessing claims the key for one worker. Only rows in received or
// failed may transition; the attempt counter advances inside the same
// statement so the claimed attempt number is authoritative. A nil record
// with nil error means the claim was lost.
func (s *ProcessedEventStore) MarkProcessing(ctx context.Context, key string) (*core.ProcessedEventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlstore: idempotency key is required")
	}
	now := time.Now().UTC()
	query := `
UPDATE courier_processed_events
SET status = ?, attempt_count = attempt_count + 1, updated_at = ?
WHERE idempotency_key = ?
  AND status IN (?, ?)
RETURNING
	id,
	idempotency_key,
	event_id,
	event_type,
	source,
	status,
	attempt_count,
	attempt_history,
	last_error_code,
	last_error,
	payload,
	received_at,
	processed_at,
	expires_at,
	created_at,
	updated_at
`
	var records []processedEventRecord
	err := s.db.NewRaw(
		query,
		core.EventStatusProcessing,
		now,
		key,
		core.EventStatusReceived,
		core.EventStatusFailed,
	).Scan(ctx, &records)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0].toDomain(), nil
}

func (s *ProcessedEventStore) MarkProcessed(ctx context.Context, key string, processedAt time.Time, expiresAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processed event store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: idempotency key is required")
	}
	result, err := s.db.NewUpdate().
		Model((*processedEventRecord)(nil)).
		Set("status = ?", core.EventStatusProcessed).
		Set("processed_at = ?", processedAt.UTC()).
		Set("expires_at = ?", expiresAt.UTC()).
		Set("last_error_code = ?", "").
		Set("last_error = ?", "").
		Set("updated_at = ?", time.Now().UTC()).
		Where("idempotency_key = ?", key).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffectedRow(result, key)
}

// MarkFailed appends one attempt to the history and parks the row in
// failed so a redelivery can claim it again.
func (s *ProcessedEventStore) MarkFailed(ctx context.Context, key string, attempt core.AttemptRecord) error {
	return s.appendAttempt(ctx, key, attempt, core.EventStatusFailed, nil)
}

func (s *ProcessedEventStore) MarkDeadLettered(ctx context.Context, key string, attempt core.AttemptRecord, expiresAt time.Time) error {
	return s.appendAttempt(ctx, key, attempt, core.EventStatusDeadLettered, &expiresAt)
}

// ResetForReplay moves a dead-lettered key back to failed so a replayed
// delivery can win the claim again. Keys in any other state are left
// alone; resetting an in-flight or processed key would break the
// exactly-once guarantee.
func (s *ProcessedEventStore) ResetForReplay(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processed event store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: idempotency key is required")
	}
	result, err := s.db.NewUpdate().
		Model((*processedEventRecord)(nil)).
		Set("status = ?", core.EventStatusFailed).
		Set("expires_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("idempotency_key = ?", key).
		Where("status = ?", core.EventStatusDeadLettered).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffectedRow(result, key)
}

// appendAttempt runs the read-modify-write for the JSON history inside a
// transaction. The claim already serialized writers for the key, so the
// transaction only guards against partial updates.
func (s *ProcessedEventStore) appendAttempt(
	ctx context.Context,
	key string,
	attempt core.AttemptRecord,
	status string,
	expiresAt *time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processed event store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: idempotency key is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &processedEventRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.idempotency_key = ?", key).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("sqlstore: ledger row for key %q not found", key)
			}
			return err
		}

		history := append(cloneAttemptHistory(record.AttemptHistory), attempt)
		historyJSON, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("sqlstore: encode attempt history: %w", err)
		}
		update := tx.NewUpdate().
			Model((*processedEventRecord)(nil)).
			Set("status = ?", status).
			Set("attempt_history = ?", string(historyJSON)).
			Set("last_error_code = ?", strings.TrimSpace(attempt.ErrorCode)).
			Set("last_error = ?", attempt.ErrorMessage).
			Set("updated_at = ?", time.Now().UTC()).
			Where("idempotency_key = ?", key)
		if expiresAt != nil {
			update = update.Set("expires_at = ?", expiresAt.UTC())
		}
		result, err := update.Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffectedRow(result, key)
	})
}

func requireAffectedRow(result sql.Result, key string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: ledger row for key %q not found", key)
	}
	return nil
}
