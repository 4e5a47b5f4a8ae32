package processing

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
)

// Processor drives one queued courier event through the idempotency
// ledger to a terminal disposition. Ledger writes propagate as errors;
// notification and audit failures are logged and absorbed.
type Processor struct {
	events      core.ProcessedEventStore
	shipments   core.ShipmentStore
	deadLetters core.DeadLetterStore
	publisher   core.DeadLetterPublisher
	coordinator *Coordinator
	policy      RetryPolicy

	observer            core.Observer
	now                 func() time.Time
	random              func() float64
	processedRetention  time.Duration
	deadLetterRetention time.Duration
}

type ProcessorOption func(*Processor)

func WithObserver(observer core.Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

func WithNow(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithRandom(random func() float64) ProcessorOption {
	return func(p *Processor) {
		if random != nil {
			p.random = random
		}
	}
}

func WithRetention(processed time.Duration, deadLetter time.Duration) ProcessorOption {
	return func(p *Processor) {
		if processed > 0 {
			p.processedRetention = processed
		}
		if deadLetter > 0 {
			p.deadLetterRetention = deadLetter
		}
	}
}

func NewProcessor(
	events core.ProcessedEventStore,
	shipments core.ShipmentStore,
	deadLetters core.DeadLetterStore,
	publisher core.DeadLetterPublisher,
	policy RetryPolicy,
	opts ...ProcessorOption,
) (*Processor, error) {
	if events == nil {
		return nil, fmt.Errorf("processing: processed event store is required")
	}
	if shipments == nil {
		return nil, fmt.Errorf("processing: shipment store is required")
	}
	if deadLetters == nil {
		return nil, fmt.Errorf("processing: dead letter store is required")
	}
	if policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("processing: retry policy max attempts must be >= 1")
	}
	coordinator, err := NewCoordinator(events)
	if err != nil {
		return nil, err
	}
	processor := &Processor{
		events:              events,
		shipments:           shipments,
		deadLetters:         deadLetters,
		publisher:           publisher,
		coordinator:         coordinator,
		policy:              policy,
		now:                 time.Now,
		random:              rand.Float64,
		processedRetention:  30 * 24 * time.Hour,
		deadLetterRetention: 90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(processor)
	}
	return processor, nil
}

// Process handles one delivery of a queued payload. The returned Outcome
// tells the job adapter how to settle the delivery; a non-nil error means
// a ledger write failed and the delivery should be redelivered untouched.
func (p *Processor) Process(ctx context.Context, payload core.QueueJobPayload) (Outcome, error) {
	if p == nil {
		return Outcome{}, fmt.Errorf("processing: processor is not configured")
	}
	startedAt := p.now()
	if err := payload.Validate(); err != nil {
		return Outcome{}, err
	}
	key := core.BuildIdempotencyKey(payload.Source, payload.EventID, payload.EventType)
	fields := map[string]any{
		"event_id":   payload.EventID,
		"event_type": payload.EventType,
		"source":     payload.Source,
		"trace_id":   payload.TraceID,
	}

	decision, err := p.coordinator.Decide(ctx, key)
	if err != nil {
		return Outcome{}, err
	}
	if !decision.Proceed {
		p.observer.LogInfo(ctx, "event skipped", withField(fields, "skip_reason", decision.Reason))
		p.observer.RecordCounter(ctx, "gateway.process_event.skipped", 1, map[string]string{"reason": decision.Reason})
		return OutcomeSkipped(decision.Reason), nil
	}

	if _, err := p.events.MarkReceived(ctx, p.receivedRecord(payload, key)); err != nil {
		return Outcome{}, err
	}

	claimed, err := p.events.MarkProcessing(ctx, key)
	if err != nil {
		return Outcome{}, err
	}
	if claimed == nil {
		p.observer.LogInfo(ctx, "event skipped", withField(fields, "skip_reason", SkipReasonClaimLost))
		p.observer.RecordCounter(ctx, "gateway.process_event.skipped", 1, map[string]string{"reason": SkipReasonClaimLost})
		return OutcomeSkipped(SkipReasonClaimLost), nil
	}
	attempt := claimed.AttemptCount
	fields["attempt"] = attempt

	if effectErr := p.applyEvent(ctx, payload); effectErr != nil {
		return p.settleFailure(ctx, payload, key, attempt, effectErr, fields)
	}

	now := p.now().UTC()
	if err := p.events.MarkProcessed(ctx, key, now, now.Add(p.processedRetention)); err != nil {
		return Outcome{}, err
	}
	p.observer.ObserveOperation(ctx, startedAt, "process_event", nil, fields)
	return OutcomeProcessed(attempt), nil
}

// applyEvent performs the domain effect: projecting the event onto the
// active shipment table.
func (p *Processor) applyEvent(ctx context.Context, payload core.QueueJobPayload) error {
	shipment, err := shipmentFromPayload(payload)
	if err != nil {
		return err
	}
	if _, err := p.shipments.Upsert(ctx, shipment); err != nil {
		return err
	}
	return nil
}

func (p *Processor) settleFailure(
	ctx context.Context,
	payload core.QueueJobPayload,
	key string,
	attempt int,
	cause error,
	fields map[string]any,
) (Outcome, error) {
	classification := Classify(cause)
	now := p.now().UTC()
	attemptRecord := core.AttemptRecord{
		Attempt:        attempt,
		ErrorCode:      classification.Code,
		ErrorMessage:   cause.Error(),
		Classification: classification.Kind,
		OccurredAt:     now,
	}

	if p.policy.ShouldRetry(attempt, classification) {
		if err := p.events.MarkFailed(ctx, key, attemptRecord); err != nil {
			return Outcome{}, err
		}
		delay, ok := p.policy.BackoffDelay(attempt, p.random())
		if !ok {
			delay = 0
		}
		p.observer.LogError(ctx, "event processing failed, retry scheduled", withFields(fields, map[string]any{
			"error":          cause.Error(),
			"error_code":     classification.Code,
			"classification": classification.Kind,
			"retry_delay_ms": delay.Milliseconds(),
		}))
		p.observer.RecordCounter(ctx, "gateway.process_event.retry", 1, map[string]string{"code": classification.Code})
		return OutcomeRetry(attempt, delay, classification.Code), nil
	}

	code := classification.Code
	if classification.Transient() {
		code = core.GatewayErrorRetryLimitExceeded
	}

	expiresAt := now.Add(p.deadLetterRetention)
	if err := p.events.MarkDeadLettered(ctx, key, attemptRecord, expiresAt); err != nil {
		return Outcome{}, err
	}
	record, err := p.events.FindByKey(ctx, key)
	if err != nil {
		return Outcome{}, err
	}

	deadLetter := core.DeadLetterEvent{
		IdempotencyKey: key,
		EventID:        payload.EventID,
		EventType:      payload.EventType,
		Source:         payload.Source,
		Payload:        payload.Payload,
		SignatureMeta:  payload.SignatureMeta,
		TraceID:        payload.TraceID,
		FailureCode:    code,
		FailureMessage: cause.Error(),
		Classification: classification.Kind,
		AttemptCount:   attempt,
		ReviewStatus:   core.ReviewStatusPending,
		ExpiresAt:      &expiresAt,
	}
	if record != nil {
		deadLetter.AttemptCount = record.AttemptCount
		deadLetter.AttemptHistory = record.AttemptHistory
	}

	persisted, err := p.deadLetters.Persist(ctx, deadLetter)
	if err != nil {
		return Outcome{}, err
	}
	if p.publisher != nil {
		if pubErr := p.publisher.PublishDeadLetter(ctx, persisted); pubErr != nil {
			p.observer.LogError(ctx, "dead letter notification failed", withField(fields, "error", pubErr.Error()))
			p.observer.RecordCounter(ctx, "gateway.dead_letter.publish_failed", 1, nil)
		}
	}

	p.observer.LogError(ctx, "event dead-lettered", withFields(fields, map[string]any{
		"error":          cause.Error(),
		"error_code":     code,
		"classification": classification.Kind,
	}))
	p.observer.RecordCounter(ctx, "gateway.process_event.dead_lettered", 1, map[string]string{"code": code})
	return OutcomeDeadLettered(attempt, code), nil
}

func (p *Processor) receivedRecord(payload core.QueueJobPayload, key string) core.ProcessedEventRecord {
	receivedAt := payload.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now().UTC()
	}
	return core.ProcessedEventRecord{
		IdempotencyKey: key,
		EventID:        payload.EventID,
		EventType:      payload.EventType,
		Source:         payload.Source,
		Status:         core.EventStatusReceived,
		Payload:        payload.Payload,
		ReceivedAt:     receivedAt,
	}
}

func shipmentFromPayload(payload core.QueueJobPayload) (core.ActiveShipment, error) {
	shipmentID := payloadString(payload.Payload, "shipmentId")
	if shipmentID == "" {
		return core.ActiveShipment{}, fmt.Errorf("processing: invalid event payload: shipmentId is required")
	}
	status := payloadString(payload.Payload, "status")
	if status == "" {
		return core.ActiveShipment{}, fmt.Errorf("processing: invalid event payload: status is required")
	}

	lastEventAt := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.OccurredAt)); err == nil {
		lastEventAt = parsed.UTC()
	}

	return core.ActiveShipment{
		ShipmentID:    shipmentID,
		OrderID:       payloadString(payload.Payload, "orderId"),
		Status:        status,
		LastEventID:   payload.EventID,
		LastEventType: payload.EventType,
		LastEventAt:   lastEventAt,
	}, nil
}

func payloadString(payload map[string]any, key string) string {
	if len(payload) == 0 {
		return ""
	}
	value, ok := payload[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func withField(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}

func withFields(fields map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+len(extra))
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
