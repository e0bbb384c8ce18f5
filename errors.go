package segsim

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("configuration error")
	// ErrStructuralMismatch is matched by every StructuralMismatchError.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrConvergence is matched by every ConvergenceFailure.
	ErrConvergence = errors.New("convergence failure")
)

// ConfigurationError is returned when a required boundary condition or setting is missing
// and no predecessor segment can supply it.
type ConfigurationError struct {
	Segment string
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error in segment `%s`: %s: %s", e.Segment, e.Field, e.Reason)
}

// Is allows errors.Is(err, ErrConfiguration).
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// StructuralMismatchError is returned when trees expected to be congruent are not.
type StructuralMismatchError struct {
	Path   string
	Reason string
}

func (e *StructuralMismatchError) Error() string {
	return fmt.Sprintf("structural mismatch at `%s`: %s", e.Path, e.Reason)
}

// Is allows errors.Is(err, ErrStructuralMismatch).
func (e *StructuralMismatchError) Is(target error) bool {
	return target == ErrStructuralMismatch
}

// ConvergenceFailure describes why a solve did not converge. The driver never returns it,
// it is only attached to the SolverResult and to the Mission error.
type ConvergenceFailure struct {
	Segment      string
	Cause        string
	Evaluations  int
	ResidualNorm float64
	// Worst is the label of the largest residual, Paired the unknown at the same packed index.
	Worst, Paired string
}

func (e *ConvergenceFailure) Error() string {
	msg := fmt.Sprintf("segment `%s` did not converge after %d evaluations (|R|=%.3e): %s", e.Segment, e.Evaluations, e.ResidualNorm, e.Cause)
	if e.Worst != "" {
		msg += fmt.Sprintf(" (worst residual %s", e.Worst)
		if e.Paired != "" {
			msg += " paired with unknown " + e.Paired
		}
		msg += ")"
	}
	return msg
}

// Is allows errors.Is(err, ErrConvergence).
func (e *ConvergenceFailure) Is(target error) bool {
	return target == ErrConvergence
}

// StageError wraps an error returned by a process stage with the path of that stage.
// The stage's own error is kept as is and reachable with errors.As.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage `%s`: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
