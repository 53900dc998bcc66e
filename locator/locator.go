// Package locator implements the stateful, resumable producers of fetch
// work: directory listings, fixed file lists, single-page API calls, and
// cursor-paginated date-range APIs (forward and backward). Every concrete
// locator persists its resumable state (processed URLs, queues, cursors,
// error records) through a kv.Store under a shared key layout, so a
// process restart resumes rather than re-fetching.
package locator

import (
	"context"

	"github.com/ocfetch/fetcher/model"
)

// Locator is the polymorphic producer the Fetcher orchestrator polls. A
// locator must never block on external I/O indefinitely from GetNextURLs:
// it may return an empty slice when temporarily idle or permanently
// exhausted, and the orchestrator decides when to stop polling it.
type Locator interface {
	// GetNextURLs returns the next batch of work, or an empty slice if the
	// locator is idle or exhausted. Errors are non-fatal: the orchestrator
	// logs and skips this locator's contribution for the current poll.
	GetNextURLs(ctx context.Context) ([]model.RequestMeta, error)

	// HandleURLProcessed is called once per processed request on every
	// locator the orchestrator holds, whether the request succeeded or
	// failed (refs is empty on failure) and regardless of which locator
	// yielded it; plan-seeded requests are reported too. Locators must
	// ignore URLs they did not yield, and use the calls for their own URLs
	// to advance cursors and persist progress.
	HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error
}

// ErrorReporter is implemented by locators that want a dedicated error
// notification distinct from a plain empty-refs HandleURLProcessed call
// (equivalent to handle_url_processed with empty bundle_refs plus error
// recording). Implementing it is optional; the Fetcher only calls it when
// present, immediately before the HandleURLProcessed call for the same
// failed request. The same broadcast rule applies: implementations ignore
// URLs they did not yield.
type ErrorReporter interface {
	HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error
}
