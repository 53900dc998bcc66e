// Package storage is the bundle-lifecycle storage abstraction: every
// Fetcher run opens one BundleContext per bundle, writes zero or more
// resources into it, and closes it exactly once (success or failure). Sink
// implementations decide where bytes end up (local filesystem, S3); the
// decorator sub-package wraps a Sink to transform resources in flight
// (decompression, re-archiving) without either side knowing about the other.
package storage

import (
	"context"
	"io"

	"github.com/ocfetch/fetcher/model"
)

// BundleContext is the write-side handle for one bundle. Callers must call
// Close exactly once, whether or not any resource was written successfully;
// Sink implementations use Close to flush a bundle.meta/metadata.json
// summary and release any resources opened by OpenBundle.
type BundleContext interface {
	// WriteResource streams r's bytes into the bundle under name, recording
	// contentType and the originating HTTP/SFTP status alongside it.
	WriteResource(ctx context.Context, name, contentType string, status int, r io.Reader) error

	// Close finalizes the bundle. ok is false when the loader or fetcher
	// aborted the bundle after a failure; implementations may use it to
	// decide whether to keep or discard partial writes.
	Close(ctx context.Context, ok bool) error
}

// Sink opens BundleContexts for a given BundleRef. Implementations must be
// safe for concurrent use by multiple workers opening different bundles.
type Sink interface {
	OpenBundle(ctx context.Context, ref model.BundleRef) (BundleContext, error)
}

// SafeFilename maps an arbitrary resource name (typically a URL path) into a
// name safe to use as a path component or zip entry: URL-decode, strip a
// leading slash, replace every character outside [A-Za-z0-9_.-] with '_'.
// An empty result becomes "index.html".
func SafeFilename(name string) string {
	return safeFilename(name)
}
