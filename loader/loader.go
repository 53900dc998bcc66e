// Package loader implements the protocol-specific byte fetchers that turn
// one model.RequestMeta into zero or more bundles written to a
// storage.Sink: HTTPLoader (http.go) for HTTP/API requests and SFTPLoader
// (sftp.go) for SFTP paths.
package loader

import (
	"context"

	"github.com/ocfetch/fetcher/model"
)

// Loader fetches the bytes a single RequestMeta identifies and writes them
// into the orchestrator's storage.Sink as one or more bundles. Load never
// returns a non-nil slice alongside a non-nil error: every protocol-level
// failure is caught internally, logged, and reported as an empty slice with
// a nil error so the orchestrator can still call HandleURLProcessed with an
// empty BundleRefs list. A non-nil error
// signals a programmer error the loader could not contain (e.g. a nil
// dependency), which the orchestrator also catches and records.
type Loader interface {
	Load(ctx context.Context, req model.RequestMeta, runCtx *model.FetchRunContext) ([]model.BundleRef, error)
}
