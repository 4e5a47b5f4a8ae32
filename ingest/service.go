// Package ingest implements the admission side of the gateway: body
// validation, the accepted/rejected audit trail, and handoff of admitted
// events onto the processing queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Request is one admitted-for-consideration delivery: the raw body, the
// signature metadata produced by the gate, and the caller's request id.
type Request struct {
	Body          []byte
	SignatureMeta core.SignatureMeta
	RequestID     string
}

// Result mirrors the acknowledgement contract returned to couriers.
type Result struct {
	Acknowledged bool   `json:"acknowledged"`
	EventID      string `json:"eventId,omitempty"`
	TraceID      string `json:"traceId,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

// Service validates verified deliveries and enqueues them for processing.
// Audit writes are best effort; enqueue failures surface as
// INTAKE_UNAVAILABLE so couriers redeliver.
type Service struct {
	enqueuer core.JobEnqueuer
	audit    core.IngestionAuditStore
	observer core.Observer
	jobName  string

	now        func() time.Time
	newTraceID func() string
}

type Option func(*Service)

func WithObserver(observer core.Observer) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

func WithJobName(jobName string) Option {
	return func(s *Service) {
		if strings.TrimSpace(jobName) != "" {
			s.jobName = strings.TrimSpace(jobName)
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTraceIDGenerator(generator func() string) Option {
	return func(s *Service) {
		if generator != nil {
			s.newTraceID = generator
		}
	}
}

func NewService(enqueuer core.JobEnqueuer, audit core.IngestionAuditStore, opts ...Option) (*Service, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("ingest: job enqueuer is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("ingest: ingestion audit store is required")
	}
	service := &Service{
		enqueuer:   enqueuer,
		audit:      audit,
		jobName:    "courier-event",
		now:        time.Now,
		newTraceID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(service)
	}
	return service, nil
}

// Admit validates one verified delivery and enqueues it. The returned
// Result is always populated, including on rejection, so transports can
// render the acknowledgement body directly.
func (s *Service) Admit(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.enqueuer == nil {
		return Result{ErrorCode: core.GatewayErrorIntakeUnavailable},
			intakeUnavailableError("ingest service is not configured")
	}
	startedAt := s.now()

	traceID := strings.TrimSpace(req.RequestID)
	if traceID == "" {
		traceID = s.newTraceID()
	}

	var event core.CourierEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		s.auditRejected(ctx, core.IngestionAuditEntry{
			TraceID:   traceID,
			ErrorCode: core.GatewayErrorInvalidPayload,
			Detail:    "body is not valid JSON",
		})
		return Result{TraceID: traceID, ErrorCode: core.GatewayErrorInvalidPayload},
			invalidPayloadError("request body is not a valid courier event")
	}
	if err := event.Validate(); err != nil {
		s.auditRejected(ctx, core.IngestionAuditEntry{
			EventID:   event.EventID,
			EventType: event.EventType,
			Source:    event.Source,
			TraceID:   traceID,
			ErrorCode: core.GatewayErrorInvalidPayload,
			Detail:    err.Error(),
		})
		return Result{TraceID: traceID, ErrorCode: core.GatewayErrorInvalidPayload},
			invalidPayloadError(err.Error())
	}
	if strings.TrimSpace(req.SignatureMeta.Signature) == "" || strings.TrimSpace(req.SignatureMeta.Algorithm) == "" {
		s.auditRejected(ctx, core.IngestionAuditEntry{
			EventID:   event.EventID,
			EventType: event.EventType,
			Source:    event.Source,
			TraceID:   traceID,
			ErrorCode: core.GatewayErrorInvalidSignature,
			Detail:    "signature metadata is missing",
		})
		return Result{TraceID: traceID, ErrorCode: core.GatewayErrorInvalidSignature},
			invalidSignatureError("signature metadata is required for admission")
	}

	s.auditAccepted(ctx, core.IngestionAuditEntry{
		EventID:   event.EventID,
		EventType: event.EventType,
		Source:    event.Source,
		TraceID:   traceID,
	})

	payload := core.QueueJobPayload{
		EventID:       event.EventID,
		EventType:     event.EventType,
		OccurredAt:    event.OccurredAt,
		Source:        event.Source,
		Payload:       event.Payload,
		SignatureMeta: req.SignatureMeta,
		TraceID:       traceID,
		Attempt:       1,
		ReceivedAt:    s.now().UTC(),
	}
	parameters, err := payload.ToParameters()
	if err != nil {
		return Result{TraceID: traceID, ErrorCode: core.GatewayErrorIntakeUnavailable},
			intakeUnavailableError(err.Error())
	}

	message := &core.JobExecutionMessage{
		JobID:          s.jobName,
		Parameters:     parameters,
		IdempotencyKey: core.BuildIdempotencyKey(event.Source, event.EventID, event.EventType),
	}
	if err := s.enqueuer.Enqueue(ctx, message); err != nil {
		s.auditEnqueueFailure(ctx, core.IngestionAuditEntry{
			EventID:   event.EventID,
			EventType: event.EventType,
			Source:    event.Source,
			TraceID:   traceID,
			ErrorCode: core.GatewayErrorIntakeUnavailable,
			Detail:    err.Error(),
		})
		s.observer.ObserveOperation(ctx, startedAt, "admit_event", err, map[string]any{
			"event_id": event.EventID,
			"source":   event.Source,
			"trace_id": traceID,
		})
		return Result{TraceID: traceID, ErrorCode: core.GatewayErrorIntakeUnavailable},
			intakeUnavailableError("enqueue failed: " + err.Error())
	}

	s.observer.ObserveOperation(ctx, startedAt, "admit_event", nil, map[string]any{
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"source":     event.Source,
		"trace_id":   traceID,
	})
	return Result{Acknowledged: true, EventID: event.EventID, TraceID: traceID}, nil
}

func (s *Service) auditAccepted(ctx context.Context, entry core.IngestionAuditEntry) {
	entry.Outcome = core.AuditOutcomeAccepted
	if err := s.audit.RecordAccepted(ctx, entry); err != nil {
		s.observer.LogError(ctx, "ingestion audit write failed", map[string]any{
			"outcome": entry.Outcome, "error": err.Error(),
		})
	}
}

func (s *Service) auditRejected(ctx context.Context, entry core.IngestionAuditEntry) {
	entry.Outcome = core.AuditOutcomeRejected
	if err := s.audit.RecordRejected(ctx, entry); err != nil {
		s.observer.LogError(ctx, "ingestion audit write failed", map[string]any{
			"outcome": entry.Outcome, "error": err.Error(),
		})
	}
}

func (s *Service) auditEnqueueFailure(ctx context.Context, entry core.IngestionAuditEntry) {
	entry.Outcome = core.AuditOutcomeEnqueueFailure
	if err := s.audit.RecordEnqueueFailure(ctx, entry); err != nil {
		s.observer.LogError(ctx, "ingestion audit write failed", map[string]any{
			"outcome": entry.Outcome, "error": err.Error(),
		})
	}
}

func invalidPayloadError(message string) *goerrors.Error {
	return goerrors.New("ingest: "+message, goerrors.CategoryBadInput).
		WithTextCode(core.GatewayErrorInvalidPayload).
		WithCode(http.StatusBadRequest)
}

func invalidSignatureError(message string) *goerrors.Error {
	return goerrors.New("ingest: "+message, goerrors.CategoryAuth).
		WithTextCode(core.GatewayErrorInvalidSignature).
		WithCode(http.StatusUnauthorized)
}

func intakeUnavailableError(message string) *goerrors.Error {
	return goerrors.New("ingest: "+message, goerrors.CategoryOperation).
		WithTextCode(core.GatewayErrorIntakeUnavailable).
		WithCode(http.StatusInternalServerError)
}
