// Package decorator wraps a storage.Sink to transform resources in flight
// without either side knowing about the other: UnzipResourceDecorator
// decompresses gzip/zip payloads before they reach the inner sink, and
// BundleResourcesDecorator (bundle.go) re-archives every resource of a
// bundle into one zip before forwarding it. Both re-stream to an arbitrary
// storage.BundleContext rather than extracting to a filesystem directory;
// UnzipResourceDecorator cleans each zip entry name so ".." segments cannot
// climb above the archive's own name.
package decorator

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/storage"
)

// BypassFunc reports whether a resource should skip decompression entirely.
// The default bypass (used when nil) preserves intentional archives: a URL
// path ending in ".zip", or an explicit "application/zip" content type.
type BypassFunc func(name, contentType string) bool

func defaultBypass(name, contentType string) bool {
	if strings.EqualFold(contentType, "application/zip") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// UnzipResourceDecorator wraps inner, sniffing the first two bytes of every
// incoming resource: 0x1F 0x8B means gzip (re-streamed, ".gz"/".gzip"
// stripped from the name); "PK" means zip (each non-directory entry
// re-emitted as its own resource under "<stripped>/<entry name>"). A gzip
// header or zip directory that fails to parse falls back to streaming the
// original bytes unchanged; an error past that point (a corrupt gzip body,
// an unreadable zip entry) is returned from WriteResource instead.
type UnzipResourceDecorator struct {
	Inner  storage.Sink
	Bypass BypassFunc
}

func (d *UnzipResourceDecorator) bypass(name, contentType string) bool {
	if d.Bypass != nil {
		return d.Bypass(name, contentType)
	}
	return defaultBypass(name, contentType)
}

func (d *UnzipResourceDecorator) OpenBundle(ctx context.Context, ref model.BundleRef) (storage.BundleContext, error) {
	inner, err := d.Inner.OpenBundle(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &unzipBundleContext{inner: inner, decorator: d}, nil
}

type unzipBundleContext struct {
	inner     storage.BundleContext
	decorator *UnzipResourceDecorator
}

func stripCompressionSuffix(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gzip"):
		return name[:len(name)-len(".gzip")]
	case strings.HasSuffix(lower, ".gz"):
		return name[:len(name)-len(".gz")]
	default:
		return name
	}
}

func stripArchiveSuffix(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		return name[:len(name)-len(".zip")]
	}
	return name
}

func (c *unzipBundleContext) WriteResource(ctx context.Context, name, contentType string, status int, r io.Reader) error {
	if c.decorator.bypass(name, contentType) {
		return c.inner.WriteResource(ctx, name, contentType, status, r)
	}

	tmp, err := os.CreateTemp("", "unzip-spool-*")
	if err != nil {
		return fmt.Errorf("%w: spooling resource for decompression: %v", model.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("%w: spooling resource for decompression: %v", model.ErrStorage, err)
	}

	header := make([]byte, 2)
	n, _ := tmp.ReadAt(header, 0)

	passthrough := func() error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}
		return c.inner.WriteResource(ctx, name, contentType, status, tmp)
	}

	switch {
	case n >= 2 && header[0] == 0x1F && header[1] == 0x8B:
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}
		gz, err := gzip.NewReader(tmp)
		if err != nil {
			return passthrough()
		}
		defer gz.Close()
		return c.inner.WriteResource(ctx, stripCompressionSuffix(name), contentType, status, gz)

	case n >= 2 && header[0] == 'P' && header[1] == 'K':
		info, err := tmp.Stat()
		if err != nil {
			return passthrough()
		}
		zr, err := zip.NewReader(tmp, info.Size())
		if err != nil {
			return passthrough()
		}
		stripped := stripArchiveSuffix(name)
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("%w: reading zip entry %q: %v", model.ErrStorage, f.Name, err)
			}
			entryName := stripped + "/" + strings.TrimPrefix(path.Clean("/"+f.Name), "/")
			writeErr := c.inner.WriteResource(ctx, entryName, "application/octet-stream", status, rc)
			rc.Close()
			if writeErr != nil {
				return writeErr
			}
		}
		return nil

	default:
		return passthrough()
	}
}

func (c *unzipBundleContext) Close(ctx context.Context, ok bool) error {
	return c.inner.Close(ctx, ok)
}
