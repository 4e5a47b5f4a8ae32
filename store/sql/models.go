package sqlstore

import (
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	"github.com/uptrace/bun"
)

type processedEventRecord struct {
	bun.BaseModel `bun:"table:courier_processed_events,alias:cpe"`

	ID             string               `bun:"id,pk"`
	IdempotencyKey string               `bun:"idempotency_key,notnull"`
	EventID        string               `bun:"event_id,notnull"`
	EventType      string               `bun:"event_type,notnull"`
	Source         string               `bun:"source,notnull"`
	Status         string               `bun:"status,notnull"`
	AttemptCount   int                  `bun:"attempt_count,notnull"`
	AttemptHistory []core.AttemptRecord `bun:"attempt_history,type:jsonb,notnull"`
	LastErrorCode  string               `bun:"last_error_code"`
	LastError      string               `bun:"last_error"`
	Payload        map[string]any       `bun:"payload,type:jsonb,notnull"`
	ReceivedAt     time.Time            `bun:"received_at,notnull"`
	ProcessedAt    *time.Time           `bun:"processed_at,nullzero"`
	ExpiresAt      *time.Time           `bun:"expires_at,nullzero"`
	CreatedAt      time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type activeShipmentRecord struct {
	bun.BaseModel `bun:"table:courier_active_shipments,alias:cas"`

	ID            string    `bun:"id,pk"`
	ShipmentID    string    `bun:"shipment_id,notnull"`
	OrderID       string    `bun:"order_id"`
	Status        string    `bun:"status,notnull"`
	LastEventID   string    `bun:"last_event_id,notnull"`
	LastEventType string    `bun:"last_event_type,notnull"`
	LastEventAt   time.Time `bun:"last_event_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deadLetterEventRecord struct {
	bun.BaseModel `bun:"table:courier_dead_letter_events,alias:cdl"`

	ID             string               `bun:"id,pk"`
	IdempotencyKey string               `bun:"idempotency_key,notnull"`
	EventID        string               `bun:"event_id,notnull"`
	EventType      string               `bun:"event_type,notnull"`
	Source         string               `bun:"source,notnull"`
	Payload        map[string]any       `bun:"payload,type:jsonb,notnull"`
	SignatureMeta  core.SignatureMeta   `bun:"signature_meta,type:jsonb,notnull"`
	TraceID        string               `bun:"trace_id"`
	FailureCode    string               `bun:"failure_code,notnull"`
	FailureMessage string               `bun:"failure_message,notnull"`
	Classification string               `bun:"classification,notnull"`
	AttemptCount   int                  `bun:"attempt_count,notnull"`
	AttemptHistory []core.AttemptRecord `bun:"attempt_history,type:jsonb,notnull"`
	ReviewStatus   string               `bun:"review_status,notnull"`
	ReviewNote     string               `bun:"review_note"`
	ExpiresAt      *time.Time           `bun:"expires_at,nullzero"`
	CreatedAt      time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ingestionAuditRecord struct {
	bun.BaseModel `bun:"table:courier_ingestion_audit,alias:cia"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id"`
	EventType string    `bun:"event_type"`
	Source    string    `bun:"source"`
	TraceID   string    `bun:"trace_id"`
	Outcome   string    `bun:"outcome,notnull"`
	ErrorCode string    `bun:"error_code"`
	Detail    string    `bun:"detail"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
