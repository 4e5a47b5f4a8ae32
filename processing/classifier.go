// Package processing implements the worker side of the gateway: error
// classification, the retry policy, idempotency arbitration, and the
// processor state machine that drives one queued courier event to a
// terminal disposition.
package processing

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/goliatone/go-courier-gateway/core"
)

// Classification is the retry decision input for one failure.
type Classification struct {
	Kind string
	Code string
}

func (c Classification) Transient() bool {
	return c.Kind == core.ClassificationTransient
}

var permanentCues = []string{"validation", "malformed", "invalid"}

// Classify buckets an arbitrary processing failure. Dependency failures
// (refused connections, timeouts, canceled deadlines) are transient;
// payload defects are permanent; anything unrecognized defaults to
// transient so a bug in classification never discards an event.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: core.ClassificationTransient, Code: core.GatewayErrorUnknown}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return Classification{Kind: core.ClassificationTransient, Code: core.GatewayErrorTransientDependency}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: core.ClassificationTransient, Code: core.GatewayErrorTransientDependency}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: core.ClassificationTransient, Code: core.GatewayErrorTransientDependency}
	}

	msg := strings.ToLower(err.Error())
	for _, cue := range permanentCues {
		if strings.Contains(msg, cue) {
			return Classification{Kind: core.ClassificationPermanent, Code: core.GatewayErrorPermanentFailure}
		}
	}

	return Classification{Kind: core.ClassificationTransient, Code: core.GatewayErrorUnknown}
}
