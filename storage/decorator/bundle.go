package decorator

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/storage"
)

// extensionForContentType maps a resource's content type to the file
// extension its zip entry gets inside the synthetic bundle.zip archive.
func extensionForContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "text/html":
		return "html"
	case "application/json":
		return "json"
	case "application/xml", "text/xml":
		return "xml"
	case "text/plain":
		return "txt"
	default:
		return "bin"
	}
}

// BundleResourcesDecorator wraps inner, collecting every WriteResource call
// made against one bundle into its own spool file instead of forwarding
// them individually. On Close it builds a single DEFLATE zip archive named
// "resource_NNN.<ext>" per collected resource (ext derived from content
// type) and forwards exactly one synthetic
// WriteResource("bundle.zip", "application/zip", 200, ...) to inner before
// forwarding Close.
type BundleResourcesDecorator struct {
	Inner storage.Sink
}

func (d *BundleResourcesDecorator) OpenBundle(ctx context.Context, ref model.BundleRef) (storage.BundleContext, error) {
	inner, err := d.Inner.OpenBundle(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &bundleResourcesContext{inner: inner}, nil
}

type spooledResource struct {
	path        string
	contentType string
}

type bundleResourcesContext struct {
	inner storage.BundleContext

	mu        sync.Mutex
	resources []spooledResource
}

func (c *bundleResourcesContext) WriteResource(ctx context.Context, name, contentType string, status int, r io.Reader) error {
	tmp, err := os.CreateTemp("", "bundle-res-*")
	if err != nil {
		return fmt.Errorf("%w: spooling resource for archiving: %v", model.ErrStorage, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: spooling resource for archiving: %v", model.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	c.mu.Lock()
	c.resources = append(c.resources, spooledResource{path: tmp.Name(), contentType: contentType})
	c.mu.Unlock()
	return nil
}

func (c *bundleResourcesContext) cleanup() {
	for _, r := range c.resources {
		os.Remove(r.path)
	}
}

func (c *bundleResourcesContext) Close(ctx context.Context, ok bool) error {
	defer c.cleanup()

	c.mu.Lock()
	resources := append([]spooledResource(nil), c.resources...)
	c.mu.Unlock()

	if !ok || len(resources) == 0 {
		return c.inner.Close(ctx, ok)
	}

	archivePath, err := c.buildArchive(resources)
	if err != nil {
		c.inner.Close(ctx, false)
		return err
	}
	defer os.Remove(archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		c.inner.Close(ctx, false)
		return fmt.Errorf("%w: reopening archive: %v", model.ErrStorage, err)
	}
	defer f.Close()

	if err := c.inner.WriteResource(ctx, "bundle.zip", "application/zip", 200, f); err != nil {
		c.inner.Close(ctx, false)
		return err
	}
	return c.inner.Close(ctx, ok)
}

func (c *bundleResourcesContext) buildArchive(resources []spooledResource) (string, error) {
	out, err := os.CreateTemp("", "bundle-archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("%w: creating archive: %v", model.ErrStorage, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for i, r := range resources {
		if err := appendResource(zw, i, r); err != nil {
			zw.Close()
			os.Remove(out.Name())
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("%w: finalizing archive: %v", model.ErrStorage, err)
	}
	return out.Name(), nil
}

func appendResource(zw *zip.Writer, index int, r spooledResource) error {
	entryName := fmt.Sprintf("resource_%03d.%s", index, extensionForContentType(r.contentType))
	w, err := zw.CreateHeader(&zip.FileHeader{Name: entryName, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("%w: creating archive entry %q: %v", model.ErrStorage, entryName, err)
	}
	in, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("%w: reading spooled resource: %v", model.ErrStorage, err)
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("%w: writing archive entry %q: %v", model.ErrStorage, entryName, err)
	}
	return nil
}
