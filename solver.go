package stepwise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Solver coordinates the decomposer, dependency scheduler, incremental
// executor, and integrator/verifier over a pluggable model provider.
type Solver struct {
	model             LLMProvider
	verifier          LLMProvider
	backendName       string
	providerFactories map[string]ProviderFactory
	logger            *zap.Logger
	temperature       float64
	modelID           string
	maxConcurrent     int
}

// New constructs a Solver with optional configuration.
func New(opts ...Option) *Solver {
	s := &Solver{
		logger:        zap.NewNop(),
		temperature:   defaultTemperature,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveModel returns the configured provider, instantiating it from the
// registered factory for the selected backend on first use.
func (s *Solver) resolveModel() (LLMProvider, error) {
	if s.model != nil {
		return s.model, nil
	}
	name := strings.TrimSpace(s.backendName)
	if name == "" {
		return nil, errors.New("no model configured: use WithModel or WithBackend")
	}
	factory := s.providerFactories[name]
	if factory == nil {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	model, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	s.model = model
	return model, nil
}

func (s *Solver) genOptions() GenerateOptions {
	return GenerateOptions{Model: s.modelID, Temperature: s.temperature}
}

// Decompose asks the model to split the problem into an ordered list of
// sub-problems with explicit dependencies. Exactly one model invocation is
// made per call. Responses that cannot be parsed into a valid decomposition
// yield an ErrDecomposition-wrapped error; malformed entries are never
// silently dropped.
func (s *Solver) Decompose(ctx context.Context, problem string) ([]Subproblem, error) {
	subs, _, err := s.decompose(ctx, problem)
	return subs, err
}

func (s *Solver) decompose(ctx context.Context, problem string) ([]Subproblem, float64, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return nil, 0, errors.New("problem is empty")
	}
	model, err := s.resolveModel()
	if err != nil {
		return nil, 0, err
	}

	user := buildDecomposerUserPrompt(problem)
	s.logger.Debug("decomposer prompt",
		zap.String("system", decomposerSystemPrompt),
		zap.String("user", user))

	resp, err := model.Generate(ctx, decomposerSystemPrompt, user, s.genOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("decomposer: %w", err)
	}
	s.logger.Debug("decomposer response", zap.String("text", resp.Text))

	text := getContent(resp)
	if strings.TrimSpace(text) == "" {
		return nil, resp.Cost, fmt.Errorf("decomposer: %w: empty completion", ErrBackendResponse)
	}
	subs, err := parseDecomposition(text)
	if err != nil {
		return nil, resp.Cost, err
	}
	if err := validateSubproblems(subs); err != nil {
		return nil, resp.Cost, err
	}
	return subs, resp.Cost, nil
}

// SolveIncrementally decomposes the problem, schedules the decomposition,
// and solves each sub-problem in dependency order, injecting the results of
// its direct dependencies into the solve prompt.
//
// Backend failures are localized: the failed index is marked StatusFailed,
// everything that (directly or transitively) depends on it is marked
// StatusSkipped without being invoked, and independent sub-problems still
// run. Decomposition and scheduling failures abort the session before any
// sub-problem is attempted.
//
// Sub-problems at the same dependency depth never depend on each other and
// may run concurrently, bounded by WithMaxConcurrent. Cancelling ctx stops
// new invocations from being issued; invocations already in flight run to
// completion and are recorded, and every index that was never dispatched is
// marked StatusSkipped. The partially filled session is returned alongside
// the context error.
func (s *Solver) SolveIncrementally(ctx context.Context, problem string) (*SolveSession, error) {
	subs, decomposeCost, err := s.decompose(ctx, problem)
	if err != nil {
		return nil, err
	}
	order, err := Schedule(subs)
	if err != nil {
		return nil, err
	}
	model, err := s.resolveModel()
	if err != nil {
		return nil, err
	}

	session := &SolveSession{
		ID:          uuid.NewString(),
		Problem:     strings.TrimSpace(problem),
		Subproblems: subs,
		Order:       order,
		Results:     make(ResultsMap, len(subs)),
		TotalCost:   decomposeCost,
	}
	s.logger.Info("solve session started",
		zap.String("session", session.ID),
		zap.Int("subproblems", len(subs)))

	// Invocations already issued are allowed to finish even if the caller
	// cancels; cancellation only gates new dispatches.
	callCtx := context.WithoutCancel(ctx)

	var mu sync.Mutex
	for _, stage := range stagesByDepth(subs, order) {
		// Decide skips and build prompts for the whole stage before any
		// worker starts. Workers insert keys into the results map, so the
		// map must not be read while they run; everything a dispatch needs
		// comes from prior stages, which are terminal here.
		type dispatch struct {
			idx  int
			user string
		}
		var pending []dispatch
		for _, idx := range stage {
			if dep, blocked := blockingDependency(subs[idx], session.Results); blocked {
				session.Results[idx] = SubResult{
					Index:     idx,
					Status:    StatusSkipped,
					Err:       fmt.Sprintf("dependency %d was not solved", dep),
					BlockedBy: dep,
				}
				s.logger.Warn("sub-problem skipped",
					zap.String("session", session.ID),
					zap.Int("index", idx),
					zap.Int("blocked_by", dep))
				continue
			}
			pending = append(pending, dispatch{
				idx:  idx,
				user: buildSolveUserPrompt(session.Problem, subs[idx], session.Results),
			})
		}

		var g errgroup.Group
		g.SetLimit(s.maxConcurrent)

		var cancelled []int
		for _, d := range pending {
			if ctx.Err() != nil {
				cancelled = append(cancelled, d.idx)
				continue
			}
			d := d
			g.Go(func() error {
				res := s.solveOne(callCtx, model, d.idx, d.user)
				mu.Lock()
				session.Results[d.idx] = res
				session.TotalCost += res.Cost
				mu.Unlock()
				return nil
			})
		}
		// Workers never return errors; failures are recorded per index.
		_ = g.Wait()

		for _, idx := range cancelled {
			session.Results[idx] = SubResult{
				Index:     idx,
				Status:    StatusSkipped,
				Err:       "session cancelled before dispatch",
				BlockedBy: -1,
			}
		}
	}

	if err := ctx.Err(); err != nil {
		s.logger.Warn("solve session cancelled", zap.String("session", session.ID))
		return session, err
	}
	return session, nil
}

// solveOne performs a single model invocation for one sub-problem and
// classifies the outcome.
func (s *Solver) solveOne(ctx context.Context, model LLMProvider, idx int, userPrompt string) SubResult {
	s.logger.Debug("solve prompt", zap.Int("index", idx), zap.String("user", userPrompt))

	start := time.Now()
	resp, err := model.Generate(ctx, solverSystemPrompt, userPrompt, s.genOptions())
	res := SubResult{
		Index:     idx,
		BlockedBy: -1,
		Cost:      resp.Cost,
		Elapsed:   time.Since(start),
	}

	answer := getContent(resp)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("%w: empty completion", ErrBackendResponse)
	}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err.Error()
		s.logger.Warn("sub-problem failed", zap.Int("index", idx), zap.Error(err))
		return res
	}

	res.Status = StatusSolved
	res.Answer = answer
	s.logger.Info("sub-problem solved",
		zap.Int("index", idx),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// stagesByDepth groups indices by topological depth (longest dependency
// chain below them). Indices within one stage are mutually independent.
// order must be a valid topological order of subs.
func stagesByDepth(subs []Subproblem, order []int) [][]int {
	depth := make([]int, len(subs))
	maxDepth := 0
	for _, i := range order {
		for _, dep := range subs[i].DependsOn {
			if d := depth[dep] + 1; d > depth[i] {
				depth[i] = d
			}
		}
		if depth[i] > maxDepth {
			maxDepth = depth[i]
		}
	}

	stages := make([][]int, maxDepth+1)
	for i := 0; i < len(subs); i++ {
		stages[depth[i]] = append(stages[depth[i]], i)
	}
	return stages
}

// blockingDependency returns the first direct dependency of sub that did not
// reach StatusSolved. Transitive propagation follows from checking direct
// dependencies stage by stage.
func blockingDependency(sub Subproblem, results ResultsMap) (int, bool) {
	for _, dep := range sub.DependsOn {
		if res, ok := results[dep]; !ok || res.Status != StatusSolved {
			return dep, true
		}
	}
	return -1, false
}
