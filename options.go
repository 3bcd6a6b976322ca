package stepwise

import (
	"go.uber.org/zap"

	"github.com/smhanov/stepwise/config"
)

const defaultTemperature = 0.2
const defaultMaxConcurrent = 1

// Option configures a Solver.
type Option func(*Solver)

// WithModel sets the model used for decomposition and sub-problem solving.
func WithModel(m LLMProvider) Option {
	return func(s *Solver) { s.model = m }
}

// WithVerifierModel overrides the model used for the verification pass.
// When unset, the solve model verifies its own assembled answer.
func WithVerifierModel(m LLMProvider) Option {
	return func(s *Solver) { s.verifier = m }
}

// WithBackend selects a registered provider factory by name. It is ignored
// when WithModel supplies a provider directly.
func WithBackend(name string) Option {
	return func(s *Solver) { s.backendName = name }
}

// WithProviderFactory registers a provider factory under a backend name.
func WithProviderFactory(name string, factory ProviderFactory) Option {
	return func(s *Solver) {
		if s.providerFactories == nil {
			s.providerFactories = make(map[string]ProviderFactory)
		}
		s.providerFactories[name] = factory
	}
}

// WithModelID sets the backend-specific model identifier passed through to
// every invocation.
func WithModelID(id string) Option {
	return func(s *Solver) { s.modelID = id }
}

// WithTemperature sets the generation temperature, in [0, 1]. Out-of-range
// values are ignored.
func WithTemperature(t float64) Option {
	return func(s *Solver) {
		if t >= 0 && t <= 1 {
			s.temperature = t
		}
	}
}

// WithMaxConcurrent bounds the number of in-flight model invocations per
// session. The default of 1 solves strictly sequentially.
func WithMaxConcurrent(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithLogger sets the structured logger. The default logger discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// FromConfig converts a loaded configuration into the equivalent options.
// The backend named by cfg.Backend must still be registered via
// WithProviderFactory (or overridden by WithModel).
func FromConfig(cfg config.Config) []Option {
	return []Option{
		WithBackend(cfg.Backend),
		WithModelID(cfg.Model),
		WithTemperature(cfg.Temperature),
		WithMaxConcurrent(cfg.MaxConcurrentInvocations),
	}
}
