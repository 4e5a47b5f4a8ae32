package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	EventStatusReceived     = "received"
	EventStatusProcessing   = "processing"
	EventStatusProcessed    = "processed"
	EventStatusFailed       = "failed"
	EventStatusDeadLettered = "dead_lettered"
)

const (
	ReviewStatusPending  = "pending"
	ReviewStatusReviewed = "reviewed"
	ReviewStatusReplayed = "replayed"
	ReviewStatusClosed   = "closed"
)

const (
	ClassificationTransient = "transient"
	ClassificationPermanent = "permanent"
)

// CourierEvent is the inbound webhook body after schema validation.
// OccurredAt stays in wire form (RFC3339) so re-serialization round-trips
// exactly what the courier signed.
type CourierEvent struct {
	EventID    string         `json:"eventId"`
	EventType  string         `json:"eventType"`
	OccurredAt string         `json:"occurredAt"`
	Source     string         `json:"source"`
	Payload    map[string]any `json:"payload"`
}

func (e CourierEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("core: event id is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("core: event type is required")
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("core: event source is required")
	}
	if strings.TrimSpace(e.OccurredAt) == "" {
		return fmt.Errorf("core: event occurred_at is required")
	}
	if _, err := time.Parse(time.RFC3339, strings.TrimSpace(e.OccurredAt)); err != nil {
		return fmt.Errorf("core: event occurred_at must be RFC3339: %w", err)
	}
	if e.Payload == nil {
		return fmt.Errorf("core: event payload is required")
	}
	return nil
}

// SignatureMeta captures the verified signature headers so downstream
// consumers can audit what admitted the event. It is never re-verified.
type SignatureMeta struct {
	Algorithm string `json:"algorithm"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// QueueJobPayload is the wire contract between the admission side and the
// worker side of the gateway.
type QueueJobPayload struct {
	EventID       string         `json:"eventId"`
	EventType     string         `json:"eventType"`
	OccurredAt    string         `json:"occurredAt"`
	Source        string         `json:"source"`
	Payload       map[string]any `json:"payload"`
	SignatureMeta SignatureMeta  `json:"signatureMeta"`
	TraceID       string         `json:"traceId"`
	Attempt       int            `json:"attempt"`
	ReceivedAt    time.Time      `json:"receivedAt"`
}

func (p QueueJobPayload) Event() CourierEvent {
	return CourierEvent{
		EventID:    p.EventID,
		EventType:  p.EventType,
		OccurredAt: p.OccurredAt,
		Source:     p.Source,
		Payload:    p.Payload,
	}
}

func (p QueueJobPayload) Validate() error {
	if err := p.Event().Validate(); err != nil {
		return err
	}
	if p.Attempt < 1 {
		return fmt.Errorf("core: payload attempt must be >= 1")
	}
	return nil
}

// AttemptRecord is one entry in the per-key processing history.
type AttemptRecord struct {
	Attempt        int       `json:"attempt"`
	ErrorCode      string    `json:"errorCode"`
	ErrorMessage   string    `json:"errorMessage"`
	Classification string    `json:"classification"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// ProcessedEventRecord is the idempotency ledger row for one key.
type ProcessedEventRecord struct {
	ID             string
	IdempotencyKey string
	EventID        string
	EventType      string
	Source         string
	Status         string
	AttemptCount   int
	AttemptHistory []AttemptRecord
	LastErrorCode  string
	LastError      string
	Payload        map[string]any
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the record reached a state no later transition
// may leave.
func (r ProcessedEventRecord) Terminal() bool {
	return r.Status == EventStatusProcessed || r.Status == EventStatusDeadLettered
}

// ActiveShipment is the keyed projection updated by the domain effect.
type ActiveShipment struct {
	ID            string
	ShipmentID    string
	OrderID       string
	Status        string
	LastEventID   string
	LastEventType string
	LastEventAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeadLetterEvent is the full forensic snapshot persisted when an event is
// routed to the dead-letter queue.
type DeadLetterEvent struct {
	ID             string
	IdempotencyKey string
	EventID        string
	EventType      string
	Source         string
	Payload        map[string]any
	SignatureMeta  SignatureMeta
	TraceID        string
	FailureCode    string
	FailureMessage string
	Classification string
	AttemptCount   int
	AttemptHistory []AttemptRecord
	ReviewStatus   string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IngestionAuditEntry is one append-only admission audit row.
type IngestionAuditEntry struct {
	EventID   string
	EventType string
	Source    string
	TraceID   string
	Outcome   string
	ErrorCode string
	Detail    string
}

const (
	AuditOutcomeAccepted       = "accepted"
	AuditOutcomeRejected       = "rejected"
	AuditOutcomeEnqueueFailure = "enqueue_failure"
)

// BuildIdempotencyKey derives the stable per-event identity used by the
// processed-event ledger: sha256 over source, event id, and event type
// joined with "::" so no field can bleed into its neighbor.
func BuildIdempotencyKey(source string, eventID string, eventType string) string {
	input := strings.TrimSpace(source) + "::" + strings.TrimSpace(eventID) + "::" + strings.TrimSpace(eventType)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
