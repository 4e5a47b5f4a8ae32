package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-courier-gateway/core"
	"github.com/goliatone/go-courier-gateway/processing"
)

// EventProcessor is the processing entry point the runner drives.
type EventProcessor interface {
	Process(ctx context.Context, payload core.QueueJobPayload) (processing.Outcome, error)
}

// Runner settles one delivery per processing outcome. The processor owns
// the retry decision; the runner owns the transport translation. Retry
// outcomes become delayed requeues, terminal outcomes (processed, skipped,
// dead-lettered) acknowledge the delivery because the ledger already
// recorded the disposition durably.
type Runner struct {
	processor EventProcessor
	observer  core.Observer

	// redeliveryDelay applies when a ledger write failed and the delivery
	// must come back unchanged.
	redeliveryDelay time.Duration
}

type RunnerOption func(*Runner)

func WithRunnerObserver(observer core.Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = observer
	}
}

func WithRedeliveryDelay(delay time.Duration) RunnerOption {
	return func(r *Runner) {
		if delay > 0 {
			r.redeliveryDelay = delay
		}
	}
}

func NewRunner(processor EventProcessor, opts ...RunnerOption) (*Runner, error) {
	if processor == nil {
		return nil, fmt.Errorf("gojob: event processor is required")
	}
	runner := &Runner{
		processor:       processor,
		redeliveryDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(runner)
	}
	return runner, nil
}

// Handle consumes one delivery. It always settles the delivery; the
// returned error reports settlement transport failures only.
func (r *Runner) Handle(ctx context.Context, delivery core.JobDelivery) error {
	if r == nil || r.processor == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}

	message := delivery.Message()
	if message == nil {
		return delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     "empty execution message",
		})
	}

	payload, err := core.PayloadFromParameters(message.Parameters)
	if err == nil {
		err = payload.Validate()
	}
	if err != nil {
		// An undecodable payload can never succeed; hand it to the
		// transport dead-letter queue instead of spinning on it.
		r.observer.LogError(ctx, "queue payload rejected", map[string]any{
			"job_id": message.JobID,
			"error":  err.Error(),
		})
		return delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     "payload decode failed",
		})
	}

	outcome, err := r.processor.Process(ctx, payload)
	if err != nil {
		r.observer.LogError(ctx, "event processing errored, redelivering", map[string]any{
			"event_id": payload.EventID,
			"trace_id": payload.TraceID,
			"error":    err.Error(),
		})
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   r.redeliveryDelay,
			Reason:  "ledger write failed",
		})
	}

	switch outcome.Kind {
	case processing.OutcomeKindRetry:
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   outcome.Delay,
			Reason:  outcome.Code,
		})
	case processing.OutcomeKindProcessed, processing.OutcomeKindSkipped, processing.OutcomeKindDeadLettered:
		return delivery.Ack(ctx)
	default:
		return fmt.Errorf("gojob: unknown processing outcome %q", outcome.Kind)
	}
}
