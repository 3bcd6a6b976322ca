package stepwise

import "strings"

// Subproblem is one atomic unit of a decomposed problem.
//
// DependsOn lists indices into the decomposition whose results must exist
// before this sub-problem can be attempted. Records are created once by
// Decompose and are immutable afterwards.
type Subproblem struct {
	Question  string `json:"question"`
	DependsOn []int  `json:"depends_on"`
}

// validateSubproblems checks the structural invariants shared by the
// decomposer and the scheduler: a non-empty list, non-empty questions, and
// dependency indices within [0, n-1]. Self-dependencies are not rejected
// here; the scheduler reports them as cycles.
func validateSubproblems(subs []Subproblem) error {
	if len(subs) == 0 {
		return decompositionErrorf("no sub-problems")
	}
	for i, sub := range subs {
		if strings.TrimSpace(sub.Question) == "" {
			return decompositionErrorf("sub-problem %d has an empty question", i)
		}
		for _, dep := range sub.DependsOn {
			if dep < 0 || dep >= len(subs) {
				return decompositionErrorf("sub-problem %d depends on out-of-range index %d (n=%d)", i, dep, len(subs))
			}
		}
	}
	return nil
}
