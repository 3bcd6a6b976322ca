package stepwise

import "context"

// GenerateOptions carries session-level generation settings through to the
// backend unchanged. A provider that has no notion of a setting may ignore it.
type GenerateOptions struct {
	// Model is the backend-specific model identifier.
	Model string
	// Temperature controls generation randomness, in [0, 1].
	Temperature float64
}

// LLMResponse is returned by LLMProvider.Generate and carries both the
// generated text and the cost (in dollars) of the call. Reasoning holds
// thinking-model output for providers that report it separately from Text.
type LLMResponse struct {
	Text      string
	Reasoning string
	Cost      float64
}

// LLMProvider is implemented by user-supplied language model clients.
//
// Implementations must be stateless across calls; any continuity is supplied
// explicitly in the prompts. Failures should wrap ErrBackendUnavailable
// (connection, auth, timeout) or ErrBackendResponse (malformed or empty
// output) so callers can classify them with errors.Is; a provider must never
// silently return empty text for a successful call. Providers are assumed
// safe for concurrent use by independent calls; if a backend is not, the
// provider must serialize internally.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (LLMResponse, error)
}

// ProviderFactory creates the provider bound to a named backend.
type ProviderFactory func() (LLMProvider, error)
