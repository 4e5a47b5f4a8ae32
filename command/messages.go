package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-courier-gateway/core"
)

const (
	TypeIngestEvent       = "gateway.command.event.ingest"
	TypeReplayDeadLetters = "gateway.command.dead_letter.replay"
)

// IngestEventMessage carries one verified delivery into the intake
// pipeline. The signature gate runs before dispatch, so the metadata here
// is trusted.
type IngestEventMessage struct {
	Body          []byte
	SignatureMeta core.SignatureMeta
	RequestID     string
}

func (IngestEventMessage) Type() string { return TypeIngestEvent }

func (m IngestEventMessage) Validate() error {
	if len(m.Body) == 0 {
		return fmt.Errorf("command: delivery body is required")
	}
	if strings.TrimSpace(m.SignatureMeta.Signature) == "" {
		return fmt.Errorf("command: signature is required")
	}
	if strings.TrimSpace(m.SignatureMeta.Algorithm) == "" {
		return fmt.Errorf("command: signature algorithm is required")
	}
	return nil
}

// ReplayDeadLettersMessage triggers one replay pass over pending dead
// letters. A zero limit uses the replayer default.
type ReplayDeadLettersMessage struct {
	Limit int
}

func (ReplayDeadLettersMessage) Type() string { return TypeReplayDeadLetters }

func (m ReplayDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("command: replay limit must not be negative")
	}
	return nil
}
