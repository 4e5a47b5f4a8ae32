package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-courier-gateway/core"
	"github.com/goliatone/go-courier-gateway/dlq"
	"github.com/goliatone/go-courier-gateway/ingest"
)

type stubIntakeService struct {
	admitFn func(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

func (s stubIntakeService) Admit(ctx context.Context, req ingest.Request) (ingest.Result, error) {
	return s.admitFn(ctx, req)
}

type stubReplayer struct {
	replayFn func(ctx context.Context, limit int) (dlq.Result, error)
}

func (s stubReplayer) Replay(ctx context.Context, limit int) (dlq.Result, error) {
	return s.replayFn(ctx, limit)
}

func TestIngestEventCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := ingest.Result{Acknowledged: true, EventID: "evt-1", TraceID: "trace-1"}
	called := false

	svc := stubIntakeService{
		admitFn: func(_ context.Context, req ingest.Request) (ingest.Result, error) {
			called = true
			if string(req.Body) != `{"eventId":"evt-1"}` {
				t.Fatalf("unexpected delivery body %q", req.Body)
			}
			if req.SignatureMeta.Algorithm != "hmac-sha256" {
				t.Fatalf("unexpected algorithm %q", req.SignatureMeta.Algorithm)
			}
			return expected, nil
		},
	}

	cmd := NewIngestEventCommand(svc)
	collector := gocmd.NewResult[ingest.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, IngestEventMessage{
		Body:          []byte(`{"eventId":"evt-1"}`),
		SignatureMeta: core.SignatureMeta{Algorithm: "hmac-sha256", Timestamp: 1767088800, Signature: "sig"},
		RequestID:     "trace-1",
	})
	if err != nil {
		t.Fatalf("execute ingest event: %v", err)
	}
	if !called {
		t.Fatalf("expected intake service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.EventID != expected.EventID || !result.Acknowledged {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestIngestEventCommand_PropagatesServiceError(t *testing.T) {
	svc := stubIntakeService{
		admitFn: func(context.Context, ingest.Request) (ingest.Result, error) {
			return ingest.Result{ErrorCode: core.GatewayErrorInvalidPayload}, fmt.Errorf("bad payload")
		},
	}
	cmd := NewIngestEventCommand(svc)
	if err := cmd.Execute(context.Background(), IngestEventMessage{}); err == nil {
		t.Fatalf("expected error from intake service")
	}
}

func TestReplayDeadLettersCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := dlq.Result{Scanned: 3, Replayed: 2, Failed: 1}
	var gotLimit int

	replayer := stubReplayer{
		replayFn: func(_ context.Context, limit int) (dlq.Result, error) {
			gotLimit = limit
			return expected, nil
		},
	}

	cmd := NewReplayDeadLettersCommand(replayer)
	collector := gocmd.NewResult[dlq.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, ReplayDeadLettersMessage{Limit: 25}); err != nil {
		t.Fatalf("execute replay: %v", err)
	}
	if gotLimit != 25 {
		t.Fatalf("expected limit 25, got %d", gotLimit)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected replay result to be stored")
	}
	if result != expected {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCommandsRequireDependencies(t *testing.T) {
	var ingestCmd *IngestEventCommand
	if err := ingestCmd.Execute(context.Background(), IngestEventMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil ingest command")
	}
	if err := NewReplayDeadLettersCommand(nil).Execute(context.Background(), ReplayDeadLettersMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil replayer")
	}
}
