package contract

import "errors"

var (
	// ErrTransport marks network or server-side model failures. Retryable
	// with backoff.
	ErrTransport = errors.New("model transport failure")

	// ErrRejected marks a request the endpoint refused for its shape or
	// parameters. Never retryable without a caller change.
	ErrRejected = errors.New("model rejected request")

	// ErrSilentExhaustion marks a response that spent the token budget on
	// internal reasoning and produced no visible text. Retryable once with
	// a larger budget.
	ErrSilentExhaustion = errors.New("model exhausted budget with no output")

	// ErrMalformed marks model output that does not parse into the shape a
	// stage expects. Not retryable.
	ErrMalformed = errors.New("model response is malformed")

	// ErrMissingDependency is raised before any stage runs when a partial
	// run lacks a required input key.
	ErrMissingDependency = errors.New("missing stage dependency")

	// ErrKeyConflict marks a second write to a context key, or two stages
	// declaring the same output key.
	ErrKeyConflict = errors.New("context key conflict")

	ErrValidation = errors.New("validation failed")
)
