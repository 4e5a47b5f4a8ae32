package processing

import (
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
)

var processorNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type memoryEventStore struct {
	records map[string]*core.ProcessedEventRecord

	failFindByKey    error
	failMarkFailed   error
	markedFailed     int
	markedProcessing int
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{records: map[string]*core.ProcessedEventRecord{}}
}

func (s *memoryEventStore) FindByKey(_ context.Context, key string) (*core.ProcessedEventRecord, error) {
	if s.failFindByKey != nil {
		return nil, s.failFindByKey
	}
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	copied := *record
	copied.AttemptHistory = append([]core.AttemptRecord(nil), record.AttemptHistory...)
	return &copied, nil
}

func (s *memoryEventStore) MarkReceived(_ context.Context, record core.ProcessedEventRecord) (*core.ProcessedEventRecord, error) {
	if existing, ok := s.records[record.IdempotencyKey]; ok {
		copied := *existing
		return &copied, nil
	}
	record.Status = core.EventStatusReceived
	record.CreatedAt = processorNow
	record.UpdatedAt = processorNow
	s.records[record.IdempotencyKey] = &record
	copied := record
	return &copied, nil
}

func (s *memoryEventStore) MarkProcessing(_ context.Context, key string) (*core.ProcessedEventRecord, error) {
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if record.Status != core.EventStatusReceived && record.Status != core.EventStatusFailed {
		return nil, nil
	}
	s.markedProcessing++
	record.Status = core.EventStatusProcessing
	record.AttemptCount++
	record.UpdatedAt = processorNow
	copied := *record
	copied.AttemptHistory = append([]core.AttemptRecord(nil), record.AttemptHistory...)
	return &copied, nil
}

func (s *memoryEventStore) MarkProcessed(_ context.Context, key string, processedAt time.Time, expiresAt time.Time) error {
	record, ok := s.records[key]
	if !ok {
		return fmt.Errorf("memory: record not found for %q", key)
	}
	record.Status = core.EventStatusProcessed
	record.ProcessedAt = &processedAt
	record.ExpiresAt = &expiresAt
	return nil
}

func (s *memoryEventStore) MarkFailed(_ context.Context, key string, attempt core.AttemptRecord) error {
	if s.failMarkFailed != nil {
		return s.failMarkFailed
	}
	record, ok := s.records[key]
	if !ok {
		return fmt.Errorf("memory: record not found for %q", key)
	}
	s.markedFailed++
	record.Status = core.EventStatusFailed
	record.AttemptHistory = append(record.AttemptHistory, attempt)
	record.LastErrorCode = attempt.ErrorCode
	record.LastError = attempt.ErrorMessage
	return nil
}

func (s *memoryEventStore) MarkDeadLettered(_ context.Context, key string, attempt core.AttemptRecord, expiresAt time.Time) error {
	record, ok := s.records[key]
	if !ok {
		return fmt.Errorf("memory: record not found for %q", key)
	}
	record.Status = core.EventStatusDeadLettered
	record.AttemptHistory = append(record.AttemptHistory, attempt)
	record.LastErrorCode = attempt.ErrorCode
	record.LastError = attempt.ErrorMessage
	record.ExpiresAt = &expiresAt
	return nil
}

type memoryShipmentStore struct {
	shipments map[string]core.ActiveShipment
	upserts   int
	failWith  error
}

func newMemoryShipmentStore() *memoryShipmentStore {
	return &memoryShipmentStore{shipments: map[string]core.ActiveShipment{}}
}

func (s *memoryShipmentStore) Upsert(_ context.Context, shipment core.ActiveShipment) (core.ActiveShipment, error) {
	if s.failWith != nil {
		return core.ActiveShipment{}, s.failWith
	}
	s.upserts++
	s.shipments[shipment.ShipmentID] = shipment
	return shipment, nil
}

func (s *memoryShipmentStore) GetByShipmentID(_ context.Context, shipmentID string) (core.ActiveShipment, error) {
	shipment, ok := s.shipments[shipmentID]
	if !ok {
		return core.ActiveShipment{}, fmt.Errorf("memory: shipment not found for %q", shipmentID)
	}
	return shipment, nil
}

type memoryDeadLetterStore struct {
	events   []core.DeadLetterEvent
	failWith error
}

func (s *memoryDeadLetterStore) Persist(_ context.Context, event core.DeadLetterEvent) (core.DeadLetterEvent, error) {
	if s.failWith != nil {
		return core.DeadLetterEvent{}, s.failWith
	}
	event.ID = fmt.Sprintf("dl-%d", len(s.events)+1)
	s.events = append(s.events, event)
	return event, nil
}

func (s *memoryDeadLetterStore) ListPendingReview(_ context.Context, limit int) ([]core.DeadLetterEvent, error) {
	out := []core.DeadLetterEvent{}
	for _, event := range s.events {
		if event.ReviewStatus == core.ReviewStatusPending {
			out = append(out, event)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryDeadLetterStore) MarkReviewed(_ context.Context, id string, _ string) error {
	return s.setReview(id, core.ReviewStatusReviewed)
}

func (s *memoryDeadLetterStore) MarkReplayed(_ context.Context, id string) error {
	return s.setReview(id, core.ReviewStatusReplayed)
}

func (s *memoryDeadLetterStore) MarkClosed(_ context.Context, id string, _ string) error {
	return s.setReview(id, core.ReviewStatusClosed)
}

func (s *memoryDeadLetterStore) setReview(id string, status string) error {
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].ReviewStatus = status
			return nil
		}
	}
	return fmt.Errorf("memory: dead letter not found for %q", id)
}

type capturingPublisher struct {
	published []core.DeadLetterEvent
	failWith  error
}

func (p *capturingPublisher) PublishDeadLetter(_ context.Context, event core.DeadLetterEvent) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, event)
	return nil
}

func testPayload() core.QueueJobPayload {
	return core.QueueJobPayload{
		EventID:    "evt-100",
		EventType:  "shipment.delivered",
		OccurredAt: "2026-08-30T10:00:00Z",
		Source:     "dhl",
		Payload: map[string]any{
			"shipmentId": "ship-1",
			"orderId":    "ord-9",
			"status":     "delivered",
		},
		SignatureMeta: core.SignatureMeta{Algorithm: "hmac-sha256", Timestamp: 1756548000, Signature: "abc"},
		TraceID:       "trace-1",
		Attempt:       1,
		ReceivedAt:    processorNow,
	}
}

type processorFixture struct {
	events      *memoryEventStore
	shipments   *memoryShipmentStore
	deadLetters *memoryDeadLetterStore
	publisher   *capturingPublisher
	processor   *Processor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	fixture := &processorFixture{
		events:      newMemoryEventStore(),
		shipments:   newMemoryShipmentStore(),
		deadLetters: &memoryDeadLetterStore{},
		publisher:   &capturingPublisher{},
	}
	processor, err := NewProcessor(
		fixture.events,
		fixture.shipments,
		fixture.deadLetters,
		fixture.publisher,
		defaultPolicy(),
		WithNow(func() time.Time { return processorNow }),
		WithRandom(func() float64 { return 0 }),
	)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	fixture.processor = processor
	return fixture
}

func TestProcessorProcessesEventOnce(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	payload := testPayload()

	outcome, err := fixture.processor.Process(ctx, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != OutcomeKindProcessed {
		t.Fatalf("expected processed outcome, got %+v", outcome)
	}
	if outcome.Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", outcome.Attempt)
	}

	shipment, err := fixture.shipments.GetByShipmentID(ctx, "ship-1")
	if err != nil {
		t.Fatalf("get shipment: %v", err)
	}
	if shipment.Status != "delivered" || shipment.OrderID != "ord-9" {
		t.Fatalf("unexpected shipment projection %+v", shipment)
	}
	if shipment.LastEventID != "evt-100" || shipment.LastEventType != "shipment.delivered" {
		t.Fatalf("unexpected shipment event linkage %+v", shipment)
	}

	key := core.BuildIdempotencyKey(payload.Source, payload.EventID, payload.EventType)
	record, err := fixture.events.FindByKey(ctx, key)
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if record == nil || record.Status != core.EventStatusProcessed {
		t.Fatalf("expected processed ledger record, got %+v", record)
	}
	if record.ExpiresAt == nil || !record.ExpiresAt.Equal(processorNow.Add(30*24*time.Hour)) {
		t.Fatalf("expected 30d expiry, got %v", record.ExpiresAt)
	}
}

func TestProcessorSkipsDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	payload := testPayload()

	if _, err := fixture.processor.Process(ctx, payload); err != nil {
		t.Fatalf("first process: %v", err)
	}
	outcome, err := fixture.processor.Process(ctx, payload)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if outcome.Kind != OutcomeKindSkipped || outcome.SkipReason != SkipReasonAlreadyProcessed {
		t.Fatalf("expected already_processed skip, got %+v", outcome)
	}
	if fixture.shipments.upserts != 1 {
		t.Fatalf("expected a single shipment upsert, got %d", fixture.shipments.upserts)
	}
}

func TestProcessorSkipsInProgressClaim(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	payload := testPayload()
	key := core.BuildIdempotencyKey(payload.Source, payload.EventID, payload.EventType)

	if _, err := fixture.events.MarkReceived(ctx, core.ProcessedEventRecord{IdempotencyKey: key}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if record, err := fixture.events.MarkProcessing(ctx, key); err != nil || record == nil {
		t.Fatalf("seed claim: %v %v", record, err)
	}

	outcome, err := fixture.processor.Process(ctx, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != OutcomeKindSkipped || outcome.SkipReason != SkipReasonInProgress {
		t.Fatalf("expected in_progress skip, got %+v", outcome)
	}
}

func TestProcessorPermanentFailureDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	payload := testPayload()
	delete(payload.Payload, "shipmentId")

	outcome, err := fixture.processor.Process(ctx, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != OutcomeKindDeadLettered {
		t.Fatalf("expected dead-lettered outcome, got %+v", outcome)
	}
	if outcome.Code != core.GatewayErrorPermanentFailure {
		t.Fatalf("expected permanent failure code, got %q", outcome.Code)
	}
	if outcome.Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", outcome.Attempt)
	}
	if fixture.events.markedFailed != 0 {
		t.Fatalf("expected no intermediate failed persistence, got %d", fixture.events.markedFailed)
	}
	if len(fixture.deadLetters.events) != 1 {
		t.Fatalf("expected exactly one dead letter, got %d", len(fixture.deadLetters.events))
	}

	deadLetter := fixture.deadLetters.events[0]
	if deadLetter.AttemptCount != 1 {
		t.Fatalf("expected dead letter attempt count 1, got %d", deadLetter.AttemptCount)
	}
	if deadLetter.ReviewStatus != core.ReviewStatusPending {
		t.Fatalf("expected pending review, got %q", deadLetter.ReviewStatus)
	}
	if deadLetter.ExpiresAt == nil || !deadLetter.ExpiresAt.Equal(processorNow.Add(90*24*time.Hour)) {
		t.Fatalf("expected 90d expiry, got %v", deadLetter.ExpiresAt)
	}
	if len(fixture.publisher.published) != 1 {
		t.Fatalf("expected one dead letter notification, got %d", len(fixture.publisher.published))
	}

	key := core.BuildIdempotencyKey(payload.Source, payload.EventID, payload.EventType)
	record, _ := fixture.events.FindByKey(ctx, key)
	if record == nil || record.Status != core.EventStatusDeadLettered {
		t.Fatalf("expected dead_lettered ledger status, got %+v", record)
	}
	if len(record.AttemptHistory) != 1 {
		t.Fatalf("expected single history entry, got %d", len(record.AttemptHistory))
	}
}

func TestProcessorTransientFailureRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	fixture.shipments.failWith = fmt.Errorf("shipment projection: %w", syscall.ECONNREFUSED)
	payload := testPayload()

	expectedDelays := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}
	for attempt := 1; attempt <= 4; attempt++ {
		outcome, err := fixture.processor.Process(ctx, payload)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if outcome.Kind != OutcomeKindRetry {
			t.Fatalf("attempt %d: expected retry outcome, got %+v", attempt, outcome)
		}
		if outcome.Attempt != attempt {
			t.Fatalf("attempt %d: expected attempt number %d, got %d", attempt, attempt, outcome.Attempt)
		}
		if outcome.Delay != expectedDelays[attempt-1] {
			t.Fatalf("attempt %d: expected delay %v, got %v", attempt, expectedDelays[attempt-1], outcome.Delay)
		}
		if outcome.Code != core.GatewayErrorTransientDependency {
			t.Fatalf("attempt %d: expected transient code, got %q", attempt, outcome.Code)
		}
	}

	outcome, err := fixture.processor.Process(ctx, payload)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if outcome.Kind != OutcomeKindDeadLettered {
		t.Fatalf("expected dead-lettered outcome, got %+v", outcome)
	}
	if outcome.Code != core.GatewayErrorRetryLimitExceeded {
		t.Fatalf("expected retry limit code, got %q", outcome.Code)
	}
	if len(fixture.deadLetters.events) != 1 {
		t.Fatalf("expected exactly one dead letter, got %d", len(fixture.deadLetters.events))
	}

	deadLetter := fixture.deadLetters.events[0]
	if deadLetter.AttemptCount != 5 {
		t.Fatalf("expected attempt count 5, got %d", deadLetter.AttemptCount)
	}
	if len(deadLetter.AttemptHistory) != 5 {
		t.Fatalf("expected history length 5, got %d", len(deadLetter.AttemptHistory))
	}
	for i, entry := range deadLetter.AttemptHistory {
		if entry.Attempt != i+1 {
			t.Fatalf("history entry %d: expected attempt %d, got %d", i, i+1, entry.Attempt)
		}
	}
}

func TestProcessorLedgerWriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	fixture.shipments.failWith = fmt.Errorf("shipment projection: %w", syscall.ECONNREFUSED)
	fixture.events.failMarkFailed = fmt.Errorf("memory: write refused")

	if _, err := fixture.processor.Process(ctx, testPayload()); err == nil {
		t.Fatalf("expected ledger write failure to propagate")
	}
}

func TestProcessorDeadLetterPublishFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	fixture := newProcessorFixture(t)
	fixture.publisher.failWith = fmt.Errorf("broker unavailable")
	payload := testPayload()
	delete(payload.Payload, "status")

	outcome, err := fixture.processor.Process(ctx, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != OutcomeKindDeadLettered {
		t.Fatalf("expected dead-lettered outcome despite publish failure, got %+v", outcome)
	}
	if len(fixture.deadLetters.events) != 1 {
		t.Fatalf("expected snapshot persisted, got %d", len(fixture.deadLetters.events))
	}
}

func TestProcessorRejectsInvalidPayload(t *testing.T) {
	fixture := newProcessorFixture(t)
	payload := testPayload()
	payload.EventID = ""
	if _, err := fixture.processor.Process(context.Background(), payload); err == nil {
		t.Fatalf("expected payload validation error")
	}
	if len(fixture.events.records) != 0 {
		t.Fatalf("expected no ledger writes for invalid payload")
	}
}

func TestCoordinatorDecide(t *testing.T) {
	ctx := context.Background()
	store := newMemoryEventStore()
	coordinator, err := NewCoordinator(store)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	decision, err := coordinator.Decide(ctx, "absent")
	if err != nil || !decision.Proceed {
		t.Fatalf("expected proceed for absent key, got %+v err=%v", decision, err)
	}

	seed := func(key string, status string) {
		store.records[key] = &core.ProcessedEventRecord{IdempotencyKey: key, Status: status}
	}
	seed("k-received", core.EventStatusReceived)
	seed("k-failed", core.EventStatusFailed)
	seed("k-processing", core.EventStatusProcessing)
	seed("k-processed", core.EventStatusProcessed)
	seed("k-dead", core.EventStatusDeadLettered)

	cases := map[string]struct {
		proceed bool
		reason  string
	}{
		"k-received":   {proceed: true},
		"k-failed":     {proceed: true},
		"k-processing": {reason: SkipReasonInProgress},
		"k-processed":  {reason: SkipReasonAlreadyProcessed},
		"k-dead":       {reason: SkipReasonDeadLettered},
	}
	for key, want := range cases {
		decision, err := coordinator.Decide(ctx, key)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if decision.Proceed != want.proceed || decision.Reason != want.reason {
			t.Fatalf("%s: expected %+v, got %+v", key, want, decision)
		}
	}
}
