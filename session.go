package stepwise

import "time"

// SolveStatus is the state of one sub-problem within a session.
type SolveStatus string

const (
	// StatusPending means the sub-problem has not reached a terminal state.
	StatusPending SolveStatus = "pending"
	// StatusSolved means the model produced a result for the sub-problem.
	StatusSolved SolveStatus = "solved"
	// StatusFailed means the model invocation for the sub-problem failed.
	StatusFailed SolveStatus = "failed"
	// StatusSkipped means the sub-problem was never invoked because a
	// dependency failed or the session was cancelled.
	StatusSkipped SolveStatus = "skipped"
)

// SubResult records the terminal outcome of one sub-problem.
type SubResult struct {
	Index  int
	Status SolveStatus

	// Answer is set only when Status is StatusSolved.
	Answer string

	// Err holds the failure or skip detail for non-solved outcomes.
	Err string

	// BlockedBy is the dependency index whose failure caused a skip,
	// or -1 when the outcome was not caused by another sub-problem.
	BlockedBy int

	Cost    float64
	Elapsed time.Duration
}

// ResultsMap maps sub-problem index to its recorded outcome. A StatusSolved
// entry is present for an index only after every one of its dependencies has
// a StatusSolved entry. Entries are appended by one solve pass and never
// overwritten.
type ResultsMap map[int]SubResult

// SolveSession binds one solve request: the original problem, its
// decomposition, the resolved execution order, the per-index outcomes, and
// the accumulated cost. A session is owned by its SolveIncrementally call
// while that call runs and is safe to read once it returns.
type SolveSession struct {
	ID          string
	Problem     string
	Subproblems []Subproblem
	Order       []int
	Results     ResultsMap
	TotalCost   float64

	// verification memoizes the verifier verdict so repeated Integrate
	// calls on an unchanged session return the same report.
	verification *VerificationReport
}

// Status returns the recorded status for index i, or StatusPending if the
// index never reached a terminal state.
func (s *SolveSession) Status(i int) SolveStatus {
	if res, ok := s.Results[i]; ok {
		return res.Status
	}
	return StatusPending
}

// Solved reports whether every sub-problem reached StatusSolved.
func (s *SolveSession) Solved() bool {
	for i := range s.Subproblems {
		if s.Status(i) != StatusSolved {
			return false
		}
	}
	return true
}

// Unresolved returns, in ascending order, every index that did not reach
// StatusSolved.
func (s *SolveSession) Unresolved() []int {
	var out []int
	for i := range s.Subproblems {
		if s.Status(i) != StatusSolved {
			out = append(out, i)
		}
	}
	return out
}
