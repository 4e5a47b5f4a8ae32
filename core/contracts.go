package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ProcessedEventStore is the idempotency ledger. MarkProcessing is the
// arbitration point: it must atomically claim the key (status received or
// failed only) and return the post-claim record, or nil when the claim was
// lost to a concurrent worker or a terminal state.
type ProcessedEventStore interface {
	FindByKey(ctx context.Context, key string) (*ProcessedEventRecord, error)
	MarkReceived(ctx context.Context, record ProcessedEventRecord) (*ProcessedEventRecord, error)
	MarkProcessing(ctx context.Context, key string) (*ProcessedEventRecord, error)
	MarkProcessed(ctx context.Context, key string, processedAt time.Time, expiresAt time.Time) error
	MarkFailed(ctx context.Context, key string, attempt AttemptRecord) error
	MarkDeadLettered(ctx context.Context, key string, attempt AttemptRecord, expiresAt time.Time) error
}

type ShipmentStore interface {
	Upsert(ctx context.Context, shipment ActiveShipment) (ActiveShipment, error)
	GetByShipmentID(ctx context.Context, shipmentID string) (ActiveShipment, error)
}

type DeadLetterStore interface {
	Persist(ctx context.Context, event DeadLetterEvent) (DeadLetterEvent, error)
	ListPendingReview(ctx context.Context, limit int) ([]DeadLetterEvent, error)
	MarkReviewed(ctx context.Context, id string, note string) error
	MarkReplayed(ctx context.Context, id string) error
	MarkClosed(ctx context.Context, id string, note string) error
}

// IngestionAuditStore records admission outcomes. Writes are best effort:
// callers log failures and move on.
type IngestionAuditStore interface {
	RecordAccepted(ctx context.Context, entry IngestionAuditEntry) error
	RecordRejected(ctx context.Context, entry IngestionAuditEntry) error
	RecordEnqueueFailure(ctx context.Context, entry IngestionAuditEntry) error
}

// DeadLetterPublisher notifies the dead-letter channel after the snapshot
// has been durably persisted.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, event DeadLetterEvent) error
}

type StoreProvider interface {
	ProcessedEventStore() ProcessedEventStore
	ShipmentStore() ShipmentStore
	DeadLetterStore() DeadLetterStore
	IngestionAuditStore() IngestionAuditStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
