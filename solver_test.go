package stepwise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedProvider is a deterministic fake backend. It routes on the system
// prompt, answers solve prompts by echoing the sub-problem line, and records
// every call for assertions.
type scriptedProvider struct {
	mu sync.Mutex

	decomposition string   // returned for every decomposer call
	verdicts      []string // consumed one per verifier call
	verdictIdx    int

	failOn      string        // solve prompts containing this question fail
	costPerCall float64
	delay       time.Duration // slept before answering, outside the lock

	decomposeCalls int
	solveCalls     int
	verifyCalls    int
	solvePrompts   []string
}

func (p *scriptedProvider) Generate(_ context.Context, systemPrompt, userPrompt string, _ GenerateOptions) (LLMResponse, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch systemPrompt {
	case decomposerSystemPrompt:
		p.decomposeCalls++
		return LLMResponse{Text: p.decomposition, Cost: p.costPerCall}, nil
	case solverSystemPrompt:
		p.solveCalls++
		p.solvePrompts = append(p.solvePrompts, userPrompt)
		if p.failOn != "" && strings.Contains(userPrompt, p.failOn) {
			return LLMResponse{}, fmt.Errorf("%w: connection refused", ErrBackendUnavailable)
		}
		return LLMResponse{Text: "answer to: " + questionLine(userPrompt), Cost: p.costPerCall}, nil
	case verifierSystemPrompt:
		p.verifyCalls++
		if p.verdictIdx >= len(p.verdicts) {
			return LLMResponse{}, errors.New("no scripted verdict available")
		}
		v := p.verdicts[p.verdictIdx]
		p.verdictIdx++
		return LLMResponse{Text: v, Cost: p.costPerCall}, nil
	default:
		return LLMResponse{}, errors.New("unknown system prompt")
	}
}

// questionLine extracts the sub-problem statement from a solve prompt.
func questionLine(userPrompt string) string {
	const marker = "Sub-problem:\n"
	idx := strings.Index(userPrompt, marker)
	if idx < 0 {
		return ""
	}
	rest := userPrompt[idx+len(marker):]
	if end := strings.Index(rest, "\n"); end >= 0 {
		return rest[:end]
	}
	return rest
}

// constructionPlan is the seven-part construction-cost decomposition:
// parts 0-2 independent, 3 needs 0-2, 4 needs 3, 5 needs 3 and 4, 6 needs 5.
const constructionPlan = `{"subproblems": [
	{"question": "List the materials needed", "depends_on": []},
	{"question": "Estimate labor hours", "depends_on": []},
	{"question": "Find local permit fees", "depends_on": []},
	{"question": "Compute the base cost from materials, labor, and permits", "depends_on": [0, 1, 2]},
	{"question": "Apply the contingency margin to the base cost", "depends_on": [3]},
	{"question": "Compute tax on the base cost plus contingency", "depends_on": [3, 4]},
	{"question": "State the final total cost", "depends_on": [5]}
]}`

func TestSolveIncrementallyAllSolved(t *testing.T) {
	llm := &scriptedProvider{decomposition: constructionPlan, costPerCall: 0.01}
	solver := New(WithModel(llm))

	session, err := solver.SolveIncrementally(context.Background(), "How much does the shed cost to build?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(session.Subproblems) != 7 {
		t.Fatalf("expected 7 sub-problems, got %d", len(session.Subproblems))
	}
	for i := 0; i < 7; i++ {
		if session.Status(i) != StatusSolved {
			t.Fatalf("index %d: expected solved, got %s", i, session.Status(i))
		}
		if session.Results[i].Answer == "" {
			t.Fatalf("index %d: empty answer", i)
		}
	}
	if llm.solveCalls != 7 {
		t.Fatalf("expected 7 solve calls, got %d", llm.solveCalls)
	}
	// Declared order already satisfies the constraints, so the schedule
	// must equal the original order.
	for i, idx := range session.Order {
		if idx != i {
			t.Fatalf("expected identity order, got %v", session.Order)
		}
	}
	// decompose (1) + solve (7) at 0.01 each
	if session.TotalCost < 0.079 || session.TotalCost > 0.081 {
		t.Fatalf("expected total cost ~0.08, got %f", session.TotalCost)
	}
}

func TestSolvePromptInjectsDependencyResults(t *testing.T) {
	llm := &scriptedProvider{decomposition: constructionPlan}
	solver := New(WithModel(llm))

	session, err := solver.SolveIncrementally(context.Background(), "How much does the shed cost to build?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The prompt for index 3 must carry the labeled results of 0, 1, and 2.
	var prompt3 string
	for _, p := range llm.solvePrompts {
		if strings.Contains(p, session.Subproblems[3].Question) {
			prompt3 = p
			break
		}
	}
	if prompt3 == "" {
		t.Fatal("no solve prompt found for index 3")
	}
	for _, dep := range []int{0, 1, 2} {
		label := fmt.Sprintf("Result %d: %s", dep, session.Results[dep].Answer)
		if !strings.Contains(prompt3, label) {
			t.Fatalf("prompt for index 3 missing %q", label)
		}
	}
	// Only direct dependencies are injected: the prompt for index 6 carries
	// the result of 5, not of transitive ancestors like 3.
	var prompt6 string
	for _, p := range llm.solvePrompts {
		if strings.Contains(p, session.Subproblems[6].Question) {
			prompt6 = p
			break
		}
	}
	if prompt6 == "" {
		t.Fatal("no solve prompt found for index 6")
	}
	if !strings.Contains(prompt6, "Result 5:") {
		t.Fatal("prompt for index 6 missing direct dependency result")
	}
	if strings.Contains(prompt6, "Result 3:") {
		t.Fatal("prompt for index 6 should not include transitive results")
	}
}

func TestFailurePropagatesToDependents(t *testing.T) {
	llm := &scriptedProvider{
		decomposition: constructionPlan,
		failOn:        "Compute the base cost",
	}
	solver := New(WithModel(llm))

	session, err := solver.SolveIncrementally(context.Background(), "How much does the shed cost to build?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, i := range []int{0, 1, 2} {
		if session.Status(i) != StatusSolved {
			t.Fatalf("index %d: expected solved, got %s", i, session.Status(i))
		}
	}
	if session.Status(3) != StatusFailed {
		t.Fatalf("index 3: expected failed, got %s", session.Status(3))
	}
	if !strings.Contains(session.Results[3].Err, "backend unavailable") {
		t.Fatalf("index 3: expected backend error detail, got %q", session.Results[3].Err)
	}
	for _, i := range []int{4, 5, 6} {
		if session.Status(i) != StatusSkipped {
			t.Fatalf("index %d: expected skipped, got %s", i, session.Status(i))
		}
	}
	if session.Results[4].BlockedBy != 3 {
		t.Fatalf("index 4: expected blocked by 3, got %d", session.Results[4].BlockedBy)
	}
	if session.Results[6].BlockedBy != 5 {
		t.Fatalf("index 6: expected blocked by 5, got %d", session.Results[6].BlockedBy)
	}
	// Skipped sub-problems must never reach the backend: 3 solved + 1 failed.
	if llm.solveCalls != 4 {
		t.Fatalf("expected 4 solve calls, got %d", llm.solveCalls)
	}

	answer, err := solver.Integrate(context.Background(), session)
	if !errors.Is(err, ErrSolveIncomplete) {
		t.Fatalf("expected ErrSolveIncomplete, got %v", err)
	}
	if answer.Complete {
		t.Fatal("expected incomplete answer")
	}
	want := []int{3, 4, 5, 6}
	if len(answer.Unresolved) != len(want) {
		t.Fatalf("expected unresolved %v, got %v", want, answer.Unresolved)
	}
	for i, idx := range want {
		if answer.Unresolved[i] != idx {
			t.Fatalf("expected unresolved %v, got %v", want, answer.Unresolved)
		}
	}
	if answer.Text == "" {
		t.Fatal("expected best-effort answer text from solved parts")
	}
	if llm.verifyCalls != 0 {
		t.Fatal("incomplete session must not be verified")
	}
}

func TestSolveIncrementallyConcurrent(t *testing.T) {
	llm := &scriptedProvider{decomposition: constructionPlan}
	solver := New(WithModel(llm), WithMaxConcurrent(3))

	session, err := solver.SolveIncrementally(context.Background(), "How much does the shed cost to build?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Solved() {
		t.Fatalf("expected fully solved session, unresolved: %v", session.Unresolved())
	}
}

// fanOutPlan builds a decomposition where index 0 stands alone and indices
// 1..n each depend on it, so one stage holds n dependent sub-problems.
func fanOutPlan(n int) string {
	var b strings.Builder
	b.WriteString(`{"subproblems": [{"question": "Establish the seed value", "depends_on": []}`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `, {"question": "Derive quantity %d from the seed", "depends_on": [0]}`, i)
	}
	b.WriteString("]}")
	return b.String()
}

func TestSolveIncrementallyConcurrentFanOut(t *testing.T) {
	const fanOut = 12
	llm := &scriptedProvider{decomposition: fanOutPlan(fanOut), delay: 2 * time.Millisecond}
	solver := New(WithModel(llm), WithMaxConcurrent(6))

	session, err := solver.SolveIncrementally(context.Background(), "Q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Solved() {
		t.Fatalf("expected fully solved session, unresolved: %v", session.Unresolved())
	}
	if llm.solveCalls != fanOut+1 {
		t.Fatalf("expected %d solve calls, got %d", fanOut+1, llm.solveCalls)
	}

	// Every dependent ran in the same stage and must have seen the seed result.
	seed := session.Results[0].Answer
	dependents := 0
	for _, p := range llm.solvePrompts {
		if !strings.Contains(p, "Derive quantity") {
			continue
		}
		dependents++
		if !strings.Contains(p, "Result 0: "+seed) {
			t.Fatalf("dependent prompt missing seed result: %q", p)
		}
	}
	if dependents != fanOut {
		t.Fatalf("expected %d dependent prompts, got %d", fanOut, dependents)
	}
}

func TestSolveIncrementallyCancelled(t *testing.T) {
	llm := &scriptedProvider{decomposition: constructionPlan}
	solver := New(WithModel(llm))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := solver.SolveIncrementally(ctx, "How much does the shed cost to build?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if session == nil {
		t.Fatal("expected partially recorded session")
	}
	for i := range session.Subproblems {
		if session.Status(i) != StatusSkipped {
			t.Fatalf("index %d: expected skipped after cancellation, got %s", i, session.Status(i))
		}
	}
	if llm.solveCalls != 0 {
		t.Fatalf("expected no solve calls after cancellation, got %d", llm.solveCalls)
	}
}

func TestCyclicDecompositionAbortsSession(t *testing.T) {
	llm := &scriptedProvider{decomposition: `{"subproblems": [
		{"question": "a", "depends_on": [1]},
		{"question": "b", "depends_on": [0]}
	]}`}
	solver := New(WithModel(llm))

	_, err := solver.SolveIncrementally(context.Background(), "Q")
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
	if llm.solveCalls != 0 {
		t.Fatalf("cycle must abort before any solve call, got %d", llm.solveCalls)
	}
}

func TestEmptyCompletionIsBackendResponseError(t *testing.T) {
	llm := &emptyCompletionProvider{decomposition: `{"subproblems": [{"question": "only one", "depends_on": []}]}`}
	solver := New(WithModel(llm))

	session, err := solver.SolveIncrementally(context.Background(), "Q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status(0) != StatusFailed {
		t.Fatalf("expected failed, got %s", session.Status(0))
	}
	if !strings.Contains(session.Results[0].Err, "invalid backend response") {
		t.Fatalf("expected backend response error detail, got %q", session.Results[0].Err)
	}
}

// emptyCompletionProvider decomposes normally but returns empty text for
// every solve call, exercising the solver's empty-completion guard.
type emptyCompletionProvider struct {
	decomposition string
}

func (p *emptyCompletionProvider) Generate(_ context.Context, systemPrompt, _ string, _ GenerateOptions) (LLMResponse, error) {
	if systemPrompt == decomposerSystemPrompt {
		return LLMResponse{Text: p.decomposition}, nil
	}
	return LLMResponse{}, nil
}

func TestBackendSelection(t *testing.T) {
	llm := &scriptedProvider{decomposition: `{"subproblems": [{"question": "only one", "depends_on": []}]}`}
	solver := New(
		WithBackend("scripted"),
		WithProviderFactory("scripted", func() (LLMProvider, error) { return llm, nil }),
	)

	session, err := solver.SolveIncrementally(context.Background(), "Q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Solved() {
		t.Fatal("expected solved session via named backend")
	}
}

func TestUnknownBackend(t *testing.T) {
	solver := New(WithBackend("nope"))
	if _, err := solver.Decompose(context.Background(), "Q"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
