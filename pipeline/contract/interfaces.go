package contract

import "context"

// ModelClient sends one structured request to the LLM endpoint. Failures are
// classified into the sentinel errors of this package; the caller decides
// retry policy.
type ModelClient interface {
	Invoke(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// Fetcher is the narrow external-data collaborator reused by evidence
// gathering. Errors are data to the pipeline, never fatal.
type Fetcher interface {
	Fetch(ctx context.Context, domain string, params map[string]string) (map[string]any, error)
}
