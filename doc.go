// Package stepwise is an incremental problem-solving orchestrator: it
// decomposes a complex problem into sub-problems with explicit dependencies,
// solves each sub-problem in dependency order while injecting the results of
// its prerequisites, and integrates the sub-results into one verified answer.
//
// # Architecture
//
// A solve session flows through four stages:
//
//  1. The Decomposer asks the model to split the problem into an ordered
//     list of Subproblem records with zero-based dependency indices.
//  2. The Scheduler validates the dependency graph and produces a
//     deterministic execution order (a topological sort that preserves the
//     declared order whenever dependencies allow).
//  3. The incremental executor solves each sub-problem in order, embedding
//     the results of its direct dependencies in the prompt. A failed
//     invocation skips everything that depends on it, transitively, while
//     independent sub-problems still run. Mutually independent sub-problems
//     may run concurrently, bounded by WithMaxConcurrent.
//  4. The Integrator assembles solved results in original order into one
//     answer and, when the session is complete, asks a verifier model
//     whether the answer is internally consistent with the problem.
//
// # Basic Usage
//
//	solver := stepwise.New(
//	    stepwise.WithModel(myLLM),
//	    stepwise.WithTemperature(0.2),
//	    stepwise.WithMaxConcurrent(3),
//	)
//
//	session, err := solver.SolveIncrementally(ctx, problem)
//	if err != nil { ... }
//	answer, err := solver.Integrate(ctx, session)
//	fmt.Println(answer.Text)
//
// # Interfaces
//
// Implement LLMProvider to connect any language model:
//
//	type LLMProvider interface {
//	    Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (LLMResponse, error)
//	}
//
// Session-level configuration (model identifier, temperature) is passed
// through to the provider unchanged in GenerateOptions. Backends can also be
// registered by name with WithProviderFactory and selected with WithBackend;
// the config subpackage loads those settings from a file or environment.
//
// # Errors
//
// Every error wraps one of the package's sentinel kinds (ErrDecomposition,
// ErrCyclicDependency, ErrBackendUnavailable, ErrBackendResponse,
// ErrSolveIncomplete) so callers can classify outcomes with errors.Is.
// Backend failures during solving never abort a session; they surface as
// per-index statuses in the returned SolveSession.
//
// See the examples/basic directory for a complete example.
package stepwise
