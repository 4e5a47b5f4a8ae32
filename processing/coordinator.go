package processing

import (
	"context"
	"fmt"

	"github.com/goliatone/go-courier-gateway/core"
)

const (
	SkipReasonAlreadyProcessed = "already_processed"
	SkipReasonDeadLettered     = "dead_lettered"
	SkipReasonInProgress       = "in_progress"
	SkipReasonClaimLost        = "claim_lost"
)

// Decision is the outcome of the cheap pre-claim idempotency check.
type Decision struct {
	Proceed bool
	Reason  string
	Record  *core.ProcessedEventRecord
}

// Coordinator arbitrates idempotency against the processed-event ledger.
// Decide is advisory; the atomic claim in MarkProcessing remains the only
// authoritative gate.
type Coordinator struct {
	store core.ProcessedEventStore
}

func NewCoordinator(store core.ProcessedEventStore) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("processing: processed event store is required")
	}
	return &Coordinator{store: store}, nil
}

func (c *Coordinator) Decide(ctx context.Context, key string) (Decision, error) {
	if c == nil || c.store == nil {
		return Decision{}, fmt.Errorf("processing: coordinator is not configured")
	}
	record, err := c.store.FindByKey(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if record == nil {
		return Decision{Proceed: true}, nil
	}
	switch record.Status {
	case core.EventStatusProcessed:
		return Decision{Reason: SkipReasonAlreadyProcessed, Record: record}, nil
	case core.EventStatusDeadLettered:
		return Decision{Reason: SkipReasonDeadLettered, Record: record}, nil
	case core.EventStatusProcessing:
		return Decision{Reason: SkipReasonInProgress, Record: record}, nil
	default:
		return Decision{Proceed: true, Record: record}, nil
	}
}
