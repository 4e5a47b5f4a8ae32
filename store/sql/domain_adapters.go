package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
)

func newProcessedEventRecord(input core.ProcessedEventRecord) *processedEventRecord {
	return &processedEventRecord{
		ID:             strings.TrimSpace(input.ID),
		IdempotencyKey: strings.TrimSpace(input.IdempotencyKey),
		EventID:        strings.TrimSpace(input.EventID),
		EventType:      strings.TrimSpace(input.EventType),
		Source:         strings.TrimSpace(input.Source),
		Status:         strings.TrimSpace(input.Status),
		AttemptCount:   input.AttemptCount,
		AttemptHistory: cloneAttemptHistory(input.AttemptHistory),
		LastErrorCode:  strings.TrimSpace(input.LastErrorCode),
		LastError:      input.LastError,
		Payload:        copyAnyMap(input.Payload),
		ReceivedAt:     input.ReceivedAt,
		ProcessedAt:    cloneTimePointer(input.ProcessedAt),
		ExpiresAt:      cloneTimePointer(input.ExpiresAt),
		CreatedAt:      input.CreatedAt,
		UpdatedAt:      input.UpdatedAt,
	}
}

func (r *processedEventRecord) toDomain() *core.ProcessedEventRecord {
	if r == nil {
		return nil
	}
	return &core.ProcessedEventRecord{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		EventID:        r.EventID,
		EventType:      r.EventType,
		Source:         r.Source,
		Status:         r.Status,
		AttemptCount:   r.AttemptCount,
		AttemptHistory: cloneAttemptHistory(r.AttemptHistory),
		LastErrorCode:  r.LastErrorCode,
		LastError:      r.LastError,
		Payload:        copyAnyMap(r.Payload),
		ReceivedAt:     r.ReceivedAt,
		ProcessedAt:    cloneTimePointer(r.ProcessedAt),
		ExpiresAt:      cloneTimePointer(r.ExpiresAt),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newActiveShipmentRecord(input core.ActiveShipment) *activeShipmentRecord {
	return &activeShipmentRecord{
		ID:            strings.TrimSpace(input.ID),
		ShipmentID:    strings.TrimSpace(input.ShipmentID),
		OrderID:       strings.TrimSpace(input.OrderID),
		Status:        strings.TrimSpace(input.Status),
		LastEventID:   strings.TrimSpace(input.LastEventID),
		LastEventType: strings.TrimSpace(input.LastEventType),
		LastEventAt:   input.LastEventAt,
		CreatedAt:     input.CreatedAt,
		UpdatedAt:     input.UpdatedAt,
	}
}

func (r *activeShipmentRecord) toDomain() core.ActiveShipment {
	if r == nil {
		return core.ActiveShipment{}
	}
	return core.ActiveShipment{
		ID:            r.ID,
		ShipmentID:    r.ShipmentID,
		OrderID:       r.OrderID,
		Status:        r.Status,
		LastEventID:   r.LastEventID,
		LastEventType: r.LastEventType,
		LastEventAt:   r.LastEventAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func newDeadLetterEventRecord(input core.DeadLetterEvent) *deadLetterEventRecord {
	return &deadLetterEventRecord{
		ID:             strings.TrimSpace(input.ID),
		IdempotencyKey: strings.TrimSpace(input.IdempotencyKey),
		EventID:        strings.TrimSpace(input.EventID),
		EventType:      strings.TrimSpace(input.EventType),
		Source:         strings.TrimSpace(input.Source),
		Payload:        copyAnyMap(input.Payload),
		SignatureMeta:  input.SignatureMeta,
		TraceID:        strings.TrimSpace(input.TraceID),
		FailureCode:    strings.TrimSpace(input.FailureCode),
		FailureMessage: input.FailureMessage,
		Classification: strings.TrimSpace(input.Classification),
		AttemptCount:   input.AttemptCount,
		AttemptHistory: cloneAttemptHistory(input.AttemptHistory),
		ReviewStatus:   strings.TrimSpace(input.ReviewStatus),
		ExpiresAt:      cloneTimePointer(input.ExpiresAt),
		CreatedAt:      input.CreatedAt,
		UpdatedAt:      input.UpdatedAt,
	}
}

func (r *deadLetterEventRecord) toDomain() core.DeadLetterEvent {
	if r == nil {
		return core.DeadLetterEvent{}
	}
	return core.DeadLetterEvent{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		EventID:        r.EventID,
		EventType:      r.EventType,
		Source:         r.Source,
		Payload:        copyAnyMap(r.Payload),
		SignatureMeta:  r.SignatureMeta,
		TraceID:        r.TraceID,
		FailureCode:    r.FailureCode,
		FailureMessage: r.FailureMessage,
		Classification: r.Classification,
		AttemptCount:   r.AttemptCount,
		AttemptHistory: cloneAttemptHistory(r.AttemptHistory),
		ReviewStatus:   r.ReviewStatus,
		ExpiresAt:      cloneTimePointer(r.ExpiresAt),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newIngestionAuditRecord(entry core.IngestionAuditEntry, outcome string, now time.Time) *ingestionAuditRecord {
	return &ingestionAuditRecord{
		EventID:   strings.TrimSpace(entry.EventID),
		EventType: strings.TrimSpace(entry.EventType),
		Source:    strings.TrimSpace(entry.Source),
		TraceID:   strings.TrimSpace(entry.TraceID),
		Outcome:   outcome,
		ErrorCode: strings.TrimSpace(entry.ErrorCode),
		Detail:    entry.Detail,
		CreatedAt: now,
	}
}

func cloneAttemptHistory(history []core.AttemptRecord) []core.AttemptRecord {
	if len(history) == 0 {
		return []core.AttemptRecord{}
	}
	return append([]core.AttemptRecord(nil), history...)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
