package stepwise

import "container/heap"

// Schedule returns an execution order over sub-problem indices such that
// every dependency of an index precedes it.
//
// When several orders are valid, ties break by ascending original index, so a
// decomposition whose declared order already satisfies its own constraints is
// returned unchanged. A cycle (including a self-dependency) yields a
// *CycleError naming the indices involved; structural defects such as
// out-of-range dependency indices yield an ErrDecomposition-wrapped error.
func Schedule(subs []Subproblem) ([]int, error) {
	if err := validateSubproblems(subs); err != nil {
		return nil, err
	}

	n := len(subs)
	dependents := make([][]int, n) // dep -> indices waiting on it
	indeg := make([]int, n)
	for i, sub := range subs {
		for _, dep := range sub.DependsOn {
			dependents[dep] = append(dependents[dep], i)
			indeg[i]++
		}
	}

	// Kahn's algorithm. The ready set is a min-heap over original indices so
	// the result is deterministic and keeps the declared order when possible.
	ready := &intMinHeap{}
	heap.Init(ready)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, u)
		for _, v := range dependents[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	if len(order) < n {
		return nil, &CycleError{Indices: findCycle(subs)}
	}
	return order, nil
}

// findCycle extracts one deterministic witness cycle by walking dependency
// edges depth-first from the lowest index. It does not attempt to list all
// cycles; it returns a single stable witness, closed at both ends.
func findCycle(subs []Subproblem) []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(subs))
	parent := make([]int, len(subs))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range subs[u].DependsOn {
			if v == u {
				cycle = []int{u, u}
				return true
			}
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// Back-edge u -> v. Reconstruct v ... u -> v via parents.
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range subs {
		if color[i] != white {
			continue
		}
		if dfs(i) {
			break
		}
	}

	// The parent walk produced the cycle back to front; reverse into
	// dependency-edge order.
	for l, r := 0, len(cycle)-1; l < r; l, r = l+1, r-1 {
		cycle[l], cycle[r] = cycle[r], cycle[l]
	}
	return cycle
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
