// Package midenderr implements the five error kinds of the mid-end
// optimizer's error-handling design: CfgInvalid, VerifierFailure,
// BudgetExceeded, ConvergenceFailure and InternalInvariant. All but
// InternalInvariant and a hard-fail ConvergenceFailure are soft: the driver
// prefers degrading over failing and only ever returns these as the final
// word when it genuinely cannot produce a safe sequence.
package midenderr

import (
	"strconv"

	"github.com/pkg/errors"
)

// CfgInvalid reports an unbalanced region marker or unknown label target
// that the structural validator could not repair.
type CfgInvalid struct {
	Stage  string
	Reason string
}

func (e *CfgInvalid) Error() string {
	return "cfg invalid at stage " + e.Stage + ": " + e.Reason
}

// VerifierFailure reports a definite-assignment violation found after a
// round; the driver falls back to the last round that verified and
// returns this error only when no round has verified yet.
type VerifierFailure struct {
	OpIndex     int
	OpKind      string
	MissingName string
}

func (e *VerifierFailure) Error() string {
	return "definite-assignment verifier: op " + strconv.Itoa(e.OpIndex) + " (" + e.OpKind + ") uses undefined value " + e.MissingName
}

// BudgetExceeded is soft: it only triggers the degradation ladder.
type BudgetExceeded struct {
	Stage    string
	SpentMS  float64
	BudgetMS float64
}

func (e *BudgetExceeded) Error() string {
	return "budget exceeded at stage " + e.Stage
}

// ConvergenceFailure reports that the fixed-point driver could not reach a
// stable structural hash within the policy's round cap. Soft unless
// MOLT_MIDEND_HARD_FAIL is set, in which case the driver wraps it as
// "failed to converge" and returns it fatally.
type ConvergenceFailure struct {
	Rounds int
}

func (e *ConvergenceFailure) Error() string {
	return "failed to converge after " + strconv.Itoa(e.Rounds) + " rounds"
}

// InternalInvariant reports a contract violation that should be
// unreachable given a correctly functioning pipeline (e.g. a PHI shape
// mismatch surviving pre-canonicalization). Always fatal.
type InternalInvariant struct {
	Stage   string
	Message string
}

func (e *InternalInvariant) Error() string {
	return "internal invariant violated at " + e.Stage + ": " + e.Message
}

// Wrap attaches stage context to an arbitrary lower-level error using
// github.com/pkg/errors, preserving a stack trace for the rarer
// InternalInvariant/hard-fail paths.
func Wrap(err error, stage string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "stage %s", stage)
}
