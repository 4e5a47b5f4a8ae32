package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-courier-gateway/dlq"
	"github.com/goliatone/go-courier-gateway/ingest"
)

type IntakeService interface {
	Admit(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

type DeadLetterReplayer interface {
	Replay(ctx context.Context, limit int) (dlq.Result, error)
}

type IngestEventCommand struct {
	service IntakeService
}

func NewIngestEventCommand(service IntakeService) *IngestEventCommand {
	return &IngestEventCommand{service: service}
}

func (c *IngestEventCommand) Execute(ctx context.Context, msg IngestEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intake service is required")
	}
	out, err := c.service.Admit(ctx, ingest.Request{
		Body:          msg.Body,
		SignatureMeta: msg.SignatureMeta,
		RequestID:     msg.RequestID,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayDeadLettersCommand struct {
	replayer DeadLetterReplayer
}

func NewReplayDeadLettersCommand(replayer DeadLetterReplayer) *ReplayDeadLettersCommand {
	return &ReplayDeadLettersCommand{replayer: replayer}
}

func (c *ReplayDeadLettersCommand) Execute(ctx context.Context, msg ReplayDeadLettersMessage) error {
	if c == nil || c.replayer == nil {
		return commandDependencyError("command: dead letter replayer is required")
	}
	out, err := c.replayer.Replay(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
