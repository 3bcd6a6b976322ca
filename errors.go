package stepwise

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this package wraps one of these, so
// callers can classify with errors.Is.
var (
	// ErrBackendUnavailable indicates the model backend could not be reached
	// (connection, auth, timeout). Returned by providers.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendResponse indicates the backend produced malformed or empty
	// output. Returned by providers, and by the solver when a provider
	// silently returns an empty completion.
	ErrBackendResponse = errors.New("invalid backend response")

	// ErrDecomposition indicates the model response could not be parsed into
	// a valid decomposition, or the decomposition itself is structurally
	// invalid (empty list, empty question, out-of-range dependency index).
	ErrDecomposition = errors.New("invalid decomposition")

	// ErrCyclicDependency indicates the dependency graph admits no execution
	// order.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrSolveIncomplete marks a session in which not every sub-problem
	// reached StatusSolved. It is reported alongside a best-effort final
	// answer, never as a hard failure.
	ErrSolveIncomplete = errors.New("solve incomplete")
)

func decompositionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecomposition, fmt.Sprintf(format, args...))
}

// CycleError reports a dependency cycle. Indices holds one witness cycle in
// dependency-edge order, closed (first element equals last).
type CycleError struct {
	Indices []int
}

func (e *CycleError) Error() string {
	if len(e.Indices) == 0 {
		return ErrCyclicDependency.Error()
	}
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s: %s", ErrCyclicDependency.Error(), strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }
