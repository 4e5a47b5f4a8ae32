package gojob

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-courier-gateway/core"
)

// DeadLetterJobPublisher publishes dead-letter notifications as jobs on
// the same transport the gateway consumes from, carrying the full
// snapshot so operators can triage without a database lookup.
type DeadLetterJobPublisher struct {
	enqueuer core.JobEnqueuer
	jobName  string
}

func NewDeadLetterJobPublisher(enqueuer core.JobEnqueuer, jobName string) (*DeadLetterJobPublisher, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required for dead letter publishing")
	}
	if strings.TrimSpace(jobName) == "" {
		jobName = JobIDDeadLetterEvent
	}
	return &DeadLetterJobPublisher{
		enqueuer: enqueuer,
		jobName:  strings.TrimSpace(jobName),
	}, nil
}

func (p *DeadLetterJobPublisher) PublishDeadLetter(ctx context.Context, event core.DeadLetterEvent) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: dead letter publisher is not configured")
	}
	history := make([]map[string]any, 0, len(event.AttemptHistory))
	for _, attempt := range event.AttemptHistory {
		history = append(history, map[string]any{
			"attempt":        attempt.Attempt,
			"errorCode":      attempt.ErrorCode,
			"errorMessage":   attempt.ErrorMessage,
			"classification": attempt.Classification,
			"occurredAt":     attempt.OccurredAt,
		})
	}
	message := &core.JobExecutionMessage{
		JobID: p.jobName,
		Parameters: map[string]any{
			"deadLetterId":   event.ID,
			"idempotencyKey": event.IdempotencyKey,
			"eventId":        event.EventID,
			"eventType":      event.EventType,
			"source":         event.Source,
			"payload":        event.Payload,
			"traceId":        event.TraceID,
			"failure": map[string]any{
				"code":           event.FailureCode,
				"message":        event.FailureMessage,
				"classification": event.Classification,
			},
			"attemptCount":   event.AttemptCount,
			"attemptHistory": history,
			"reviewStatus":   event.ReviewStatus,
		},
		IdempotencyKey: event.IdempotencyKey,
	}
	return p.enqueuer.Enqueue(ctx, message)
}

var _ core.DeadLetterPublisher = (*DeadLetterJobPublisher)(nil)
