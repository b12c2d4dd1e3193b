package pool

import (
	"errors"
	"fmt"

	"github.com/ts4z/tote/model"
)

var (
	// ErrBelowMinimum rejects a stake under the configured minimum.
	ErrBelowMinimum = errors.New("stake below minimum")

	// ErrAlreadyFinalized rejects re-entry into fee settlement.  This is a
	// hard rejection, distinct from the silent per-index idempotence inside
	// a settlement batch.
	ErrAlreadyFinalized = errors.New("fees already finalized for round")

	// ErrWinnerAlreadyDeclared rejects a second winner declaration.
	ErrWinnerAlreadyDeclared = errors.New("winner already declared")

	// ErrBadRequest covers malformed input: unknown competitor, bad range,
	// bad window parameters.
	ErrBadRequest = errors.New("bad request")

	// ErrPermissionDenied is surfaced by the permission facade.
	ErrPermissionDenied = errors.New("permission denied")
)

// PhaseError reports an operation attempted in the wrong round phase.  The
// whole call is rejected with no state change; the message names the unmet
// precondition so the operator knows what to fix.
type PhaseError struct {
	Op     string
	Phase  model.Phase
	Reason string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s (round is %s)", e.Op, e.Reason, e.Phase)
}

func phaseErr(op string, phase model.Phase, f string, more ...any) *PhaseError {
	return &PhaseError{Op: op, Phase: phase, Reason: fmt.Sprintf(f, more...)}
}
