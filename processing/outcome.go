package processing

import "time"

const (
	OutcomeKindProcessed    = "processed"
	OutcomeKindSkipped      = "skipped"
	OutcomeKindRetry        = "retry"
	OutcomeKindDeadLettered = "dead_lettered"
)

// Outcome is the disposition of one processing attempt. Dispositions are
// data, not errors: the job adapter translates them into transport
// acknowledgements.
type Outcome struct {
	Kind       string
	SkipReason string
	Delay      time.Duration
	Code       string
	Attempt    int
}

func OutcomeProcessed(attempt int) Outcome {
	return Outcome{Kind: OutcomeKindProcessed, Attempt: attempt}
}

func OutcomeSkipped(reason string) Outcome {
	return Outcome{Kind: OutcomeKindSkipped, SkipReason: reason}
}

func OutcomeRetry(attempt int, delay time.Duration, code string) Outcome {
	return Outcome{Kind: OutcomeKindRetry, Attempt: attempt, Delay: delay, Code: code}
}

func OutcomeDeadLettered(attempt int, code string) Outcome {
	return Outcome{Kind: OutcomeKindDeadLettered, Attempt: attempt, Code: code}
}
