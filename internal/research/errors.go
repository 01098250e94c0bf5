package research

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrInvalidInput is returned before a session exists when the query or
// depth is unusable.
var ErrInvalidInput = eris.New("research: invalid input")

// Orchestration stages reported by OrchestrationError.
const (
	StagePlan       = "plan"
	StageHop        = "hop"
	StageHypotheses = "hypotheses"
	StageTest       = "test"
	StageSynthesize = "synthesize"
	StageLedger     = "ledger"
	StagePersist    = "persist"
)

// OrchestrationError is an unrecoverable failure of a session. The session
// has already been moved to the error state when it is returned.
type OrchestrationError struct {
	SessionID string
	Stage     string
	Err       error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("research: session %s failed at %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }
