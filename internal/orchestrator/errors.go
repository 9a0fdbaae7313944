package orchestrator

import "errors"

// Error taxonomy for a graph run. Only ErrContextUnavailable aborts a
// request; everything at or past the model call resolves to a fallback
// response instead of surfacing.
var (
	// ErrContextUnavailable marks a failed persistence read during context
	// assembly. The request aborts before any model call.
	ErrContextUnavailable = errors.New("request context unavailable")

	// ErrModelUnavailable marks a failed or cancelled completion call. It is
	// absorbed into a fallback response, never returned to callers.
	ErrModelUnavailable = errors.New("model completion unavailable")

	// ErrMalformedModelOutput marks raw text the normalizer could not
	// recover a structured record from. Absorbed into a fallback response.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrPersistenceWrite marks a failed message or summary append after the
	// response was already computed. Logged, never user-visible.
	ErrPersistenceWrite = errors.New("persistence write failed")

	// ErrUnknownFeature is returned for a feature name no graph is
	// registered under.
	ErrUnknownFeature = errors.New("unknown feature")
)
