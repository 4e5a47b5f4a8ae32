// Package dlq contains operator tooling for the dead-letter queue.
package dlq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
)

const defaultReplayJobName = "courier-event"

// LedgerResetter is the optional ledger hook the replayer uses to move a
// dead-lettered key back into a claimable state before re-enqueueing.
// Without it a replayed delivery is skipped by the idempotency gate.
type LedgerResetter interface {
	ResetForReplay(ctx context.Context, key string) error
}

// Result summarizes one replay pass.
type Result struct {
	Scanned  int
	Replayed int
	Failed   int
}

// Replayer re-enqueues pending dead letters as fresh first-attempt
// deliveries and advances their review status to replayed.
type Replayer struct {
	deadLetters core.DeadLetterStore
	enqueuer    core.JobEnqueuer
	ledger      core.ProcessedEventStore
	observer    core.Observer
	jobName     string
	now         func() time.Time
}

type ReplayerOption func(*Replayer)

// WithLedger enables ledger resets before re-enqueueing.
func WithLedger(ledger core.ProcessedEventStore) ReplayerOption {
	return func(r *Replayer) {
		r.ledger = ledger
	}
}

func WithReplayJobName(name string) ReplayerOption {
	return func(r *Replayer) {
		if strings.TrimSpace(name) != "" {
			r.jobName = strings.TrimSpace(name)
		}
	}
}

func WithReplayObserver(observer core.Observer) ReplayerOption {
	return func(r *Replayer) {
		r.observer = observer
	}
}

func WithReplayNow(now func() time.Time) ReplayerOption {
	return func(r *Replayer) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReplayer(deadLetters core.DeadLetterStore, enqueuer core.JobEnqueuer, opts ...ReplayerOption) (*Replayer, error) {
	if deadLetters == nil {
		return nil, fmt.Errorf("dlq: dead letter store is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("dlq: enqueuer is required")
	}
	replayer := &Replayer{
		deadLetters: deadLetters,
		enqueuer:    enqueuer,
		jobName:     defaultReplayJobName,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(replayer)
	}
	return replayer, nil
}

// Replay processes up to limit pending dead letters. Per-event failures
// are counted and logged; the pass continues so one poisoned snapshot
// cannot block the rest of the batch.
func (r *Replayer) Replay(ctx context.Context, limit int) (Result, error) {
	if r == nil || r.deadLetters == nil || r.enqueuer == nil {
		return Result{}, fmt.Errorf("dlq: replayer is not configured")
	}
	if limit <= 0 {
		limit = 10
	}

	events, err := r.deadLetters.ListPendingReview(ctx, limit)
	if err != nil {
		return Result{}, err
	}

	result := Result{Scanned: len(events)}
	for _, event := range events {
		if err := r.replayOne(ctx, event); err != nil {
			result.Failed++
			r.observer.LogError(ctx, "dead letter replay failed", map[string]any{
				"dead_letter_id": event.ID,
				"event_id":       event.EventID,
				"error":          err.Error(),
			})
			continue
		}
		result.Replayed++
	}

	r.observer.LogInfo(ctx, "dead letter replay completed", map[string]any{
		"scanned":  result.Scanned,
		"replayed": result.Replayed,
		"failed":   result.Failed,
	})
	return result, nil
}

func (r *Replayer) replayOne(ctx context.Context, event core.DeadLetterEvent) error {
	payload := r.replayPayload(event)
	parameters, err := payload.ToParameters()
	if err != nil {
		return fmt.Errorf("dlq: encode replay payload: %w", err)
	}

	if resetter, ok := r.ledger.(LedgerResetter); ok && resetter != nil {
		if err := resetter.ResetForReplay(ctx, event.IdempotencyKey); err != nil {
			return fmt.Errorf("dlq: reset ledger: %w", err)
		}
	}

	if err := r.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          r.jobName,
		Parameters:     parameters,
		IdempotencyKey: event.IdempotencyKey,
	}); err != nil {
		return fmt.Errorf("dlq: enqueue replay: %w", err)
	}

	if err := r.deadLetters.MarkReplayed(ctx, event.ID); err != nil {
		return fmt.Errorf("dlq: mark replayed: %w", err)
	}
	return nil
}

func (r *Replayer) replayPayload(event core.DeadLetterEvent) core.QueueJobPayload {
	now := r.now().UTC()

	occurredAt := now.Format(time.RFC3339)
	if value, ok := event.Payload["occurredAt"].(string); ok && strings.TrimSpace(value) != "" {
		occurredAt = strings.TrimSpace(value)
	}

	source := strings.TrimSpace(event.Source)
	if source == "" {
		source = "dlq-replay"
	}

	meta := event.SignatureMeta
	if strings.TrimSpace(meta.Algorithm) == "" {
		meta = core.SignatureMeta{
			Algorithm: "hmac-sha256",
			Timestamp: now.Unix(),
			Signature: "replayed",
		}
	}

	traceID := strings.TrimSpace(event.TraceID)
	if traceID == "" {
		traceID = "dlq-" + strings.TrimSpace(event.EventID)
	}

	return core.QueueJobPayload{
		EventID:       event.EventID,
		EventType:     event.EventType,
		OccurredAt:    occurredAt,
		Source:        source,
		Payload:       event.Payload,
		SignatureMeta: meta,
		TraceID:       traceID,
		Attempt:       1,
		ReceivedAt:    now,
	}
}
