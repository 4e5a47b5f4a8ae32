package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	goerrors "github.com/goliatone/go-errors"
)

var ingestNow = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

type capturingEnqueuer struct {
	messages []*core.JobExecutionMessage
	failWith error
}

func (e *capturingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if e.failWith != nil {
		return e.failWith
	}
	e.messages = append(e.messages, msg)
	return nil
}

type capturingAuditStore struct {
	accepted        []core.IngestionAuditEntry
	rejected        []core.IngestionAuditEntry
	enqueueFailures []core.IngestionAuditEntry
	failWith        error
}

func (s *capturingAuditStore) RecordAccepted(_ context.Context, entry core.IngestionAuditEntry) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.accepted = append(s.accepted, entry)
	return nil
}

func (s *capturingAuditStore) RecordRejected(_ context.Context, entry core.IngestionAuditEntry) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.rejected = append(s.rejected, entry)
	return nil
}

func (s *capturingAuditStore) RecordEnqueueFailure(_ context.Context, entry core.IngestionAuditEntry) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.enqueueFailures = append(s.enqueueFailures, entry)
	return nil
}

func validBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"eventId":    "evt-100",
		"eventType":  "shipment.delivered",
		"occurredAt": "2026-08-30T09:59:00Z",
		"source":     "dhl",
		"payload":    map[string]any{"shipmentId": "ship-1", "status": "delivered"},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func validMeta() core.SignatureMeta {
	return core.SignatureMeta{Algorithm: "hmac-sha256", Timestamp: ingestNow.Unix(), Signature: "deadbeef"}
}

func newTestService(t *testing.T, enqueuer *capturingEnqueuer, audit *capturingAuditStore) *Service {
	t.Helper()
	service, err := NewService(enqueuer, audit,
		WithNow(func() time.Time { return ingestNow }),
		WithTraceIDGenerator(func() string { return "generated-trace" }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func assertTextCode(t *testing.T, err error, textCode string, status int) {
	t.Helper()
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected *goerrors.Error, got %T", err)
	}
	if richErr.TextCode != textCode || richErr.Code != status {
		t.Fatalf("expected %s/%d, got %s/%d", textCode, status, richErr.TextCode, richErr.Code)
	}
}

func TestAdmitEnqueuesValidEvent(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	audit := &capturingAuditStore{}
	service := newTestService(t, enqueuer, audit)

	result, err := service.Admit(context.Background(), Request{
		Body:          validBody(t),
		SignatureMeta: validMeta(),
		RequestID:     "req-1",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !result.Acknowledged || result.EventID != "evt-100" || result.TraceID != "req-1" {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(enqueuer.messages))
	}
	message := enqueuer.messages[0]
	if message.JobID != "courier-event" {
		t.Fatalf("unexpected job id %q", message.JobID)
	}
	if message.IdempotencyKey != core.BuildIdempotencyKey("dhl", "evt-100", "shipment.delivered") {
		t.Fatalf("unexpected idempotency key %q", message.IdempotencyKey)
	}

	payload, err := core.PayloadFromParameters(message.Parameters)
	if err != nil {
		t.Fatalf("decode parameters: %v", err)
	}
	if payload.Attempt != 1 {
		t.Fatalf("expected initial attempt 1, got %d", payload.Attempt)
	}
	if payload.TraceID != "req-1" || payload.EventID != "evt-100" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.SignatureMeta != validMeta() {
		t.Fatalf("expected signature meta carried through, got %+v", payload.SignatureMeta)
	}
	if !payload.ReceivedAt.Equal(ingestNow) {
		t.Fatalf("expected received at %v, got %v", ingestNow, payload.ReceivedAt)
	}

	if len(audit.accepted) != 1 || audit.accepted[0].Outcome != core.AuditOutcomeAccepted {
		t.Fatalf("expected accepted audit entry, got %+v", audit.accepted)
	}
}

func TestAdmitGeneratesTraceIDWhenMissing(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	service := newTestService(t, enqueuer, &capturingAuditStore{})

	result, err := service.Admit(context.Background(), Request{
		Body:          validBody(t),
		SignatureMeta: validMeta(),
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.TraceID != "generated-trace" {
		t.Fatalf("expected generated trace id, got %q", result.TraceID)
	}
}

func TestAdmitRejectsMalformedJSON(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	audit := &capturingAuditStore{}
	service := newTestService(t, enqueuer, audit)

	result, err := service.Admit(context.Background(), Request{
		Body:          []byte("{not json"),
		SignatureMeta: validMeta(),
	})
	if err == nil {
		t.Fatalf("expected rejection")
	}
	assertTextCode(t, err, core.GatewayErrorInvalidPayload, http.StatusBadRequest)
	if result.ErrorCode != core.GatewayErrorInvalidPayload {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(enqueuer.messages) != 0 {
		t.Fatalf("expected nothing enqueued")
	}
	if len(audit.rejected) != 1 {
		t.Fatalf("expected rejected audit entry")
	}
}

func TestAdmitRejectsInvalidEvent(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	audit := &capturingAuditStore{}
	service := newTestService(t, enqueuer, audit)

	body, _ := json.Marshal(map[string]any{
		"eventId":   "evt-1",
		"eventType": "shipment.delivered",
		"source":    "dhl",
		// occurredAt missing
		"payload": map[string]any{},
	})
	_, err := service.Admit(context.Background(), Request{Body: body, SignatureMeta: validMeta()})
	if err == nil {
		t.Fatalf("expected rejection")
	}
	assertTextCode(t, err, core.GatewayErrorInvalidPayload, http.StatusBadRequest)
	if len(audit.rejected) != 1 || audit.rejected[0].EventID != "evt-1" {
		t.Fatalf("expected rejected audit entry with event id, got %+v", audit.rejected)
	}
}

func TestAdmitRequiresSignatureMeta(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	audit := &capturingAuditStore{}
	service := newTestService(t, enqueuer, audit)

	_, err := service.Admit(context.Background(), Request{Body: validBody(t)})
	if err == nil {
		t.Fatalf("expected rejection")
	}
	assertTextCode(t, err, core.GatewayErrorInvalidSignature, http.StatusUnauthorized)
	if len(enqueuer.messages) != 0 {
		t.Fatalf("expected nothing enqueued")
	}
}

func TestAdmitEnqueueFailureIsIntakeUnavailable(t *testing.T) {
	enqueuer := &capturingEnqueuer{failWith: fmt.Errorf("broker down")}
	audit := &capturingAuditStore{}
	service := newTestService(t, enqueuer, audit)

	result, err := service.Admit(context.Background(), Request{
		Body:          validBody(t),
		SignatureMeta: validMeta(),
	})
	if err == nil {
		t.Fatalf("expected enqueue failure")
	}
	assertTextCode(t, err, core.GatewayErrorIntakeUnavailable, http.StatusInternalServerError)
	if result.Acknowledged {
		t.Fatalf("expected unacknowledged result, got %+v", result)
	}
	if len(audit.accepted) != 1 {
		t.Fatalf("expected accepted audit recorded before enqueue")
	}
	if len(audit.enqueueFailures) != 1 {
		t.Fatalf("expected enqueue failure audit entry")
	}
}

func TestAdmitAuditFailuresDoNotBlockAdmission(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	audit := &capturingAuditStore{failWith: fmt.Errorf("audit db down")}
	service := newTestService(t, enqueuer, audit)

	result, err := service.Admit(context.Background(), Request{
		Body:          validBody(t),
		SignatureMeta: validMeta(),
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !result.Acknowledged {
		t.Fatalf("expected acknowledgement despite audit failure")
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected event enqueued despite audit failure")
	}
}
