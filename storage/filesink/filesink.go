// Package filesink is a local-filesystem storage.Sink: each bundle becomes
// a "bundle_<bid>/" directory, each resource a safe-named file plus a
// ".meta" JSON sidecar, and Close writes a "bundle.meta" summary. Path
// handling guards against escaping the bundle root the same way a zip-slip
// check guards archive extraction. Every WriteResource also spools through
// os.CreateTemp and renames the spool file into place once it is fully
// written, so a failed write leaves no partial file under the final name.
package filesink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/storage"
)

// Config configures the Sink.
type Config struct {
	RootDir string // parent directory under which bundle_<bid>/ dirs are created
}

// Sink is a storage.Sink backed by the local filesystem.
type Sink struct {
	cfg Config
}

// New builds a Sink rooted at cfg.RootDir, creating it if absent.
func New(cfg Config) (*Sink, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("filesink: RootDir is required")
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("filesink: creating root dir: %w", err)
	}
	return &Sink{cfg: cfg}, nil
}

type resourceSummary struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Status      int    `json:"status"`
	Size        int64  `json:"size"`
}

type bundleSummary struct {
	BundleID   string            `json:"bundle_id"`
	PrimaryURL string            `json:"primary_url"`
	CreatedAt  time.Time         `json:"created_at"`
	Resources  []resourceSummary `json:"resources"`
	OK         bool              `json:"ok"`
}

type bundleContext struct {
	dir string
	ref model.BundleRef

	mu        sync.Mutex
	resources []resourceSummary
}

func (s *Sink) OpenBundle(ctx context.Context, ref model.BundleRef) (storage.BundleContext, error) {
	dir := filepath.Join(s.cfg.RootDir, "bundle_"+storage.SafeFilename(ref.BID))
	cleanRoot := filepath.Clean(s.cfg.RootDir)
	if !strings.HasPrefix(filepath.Clean(dir), cleanRoot+string(os.PathSeparator)) {
		return nil, fmt.Errorf("filesink: unsafe bundle directory for id %q", ref.BID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesink: creating bundle dir: %w", err)
	}
	return &bundleContext{dir: dir, ref: ref}, nil
}

func (b *bundleContext) WriteResource(ctx context.Context, name, contentType string, status int, r io.Reader) error {
	safe := storage.SafeFilename(name)
	path := filepath.Join(b.dir, safe)

	tmp, err := os.CreateTemp(b.dir, ".spool-*")
	if err != nil {
		return fmt.Errorf("filesink: spooling resource: %w", err)
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, r)
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filesink: writing resource %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filesink: closing spool file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filesink: finalizing resource %q: %w", name, err)
	}

	meta := resourceSummary{Name: safe, ContentType: contentType, Status: status, Size: n}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("filesink: marshaling resource meta: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaBytes, 0o644); err != nil {
		return fmt.Errorf("filesink: writing resource meta: %w", err)
	}

	b.mu.Lock()
	b.resources = append(b.resources, meta)
	b.mu.Unlock()
	return nil
}

func (b *bundleContext) Close(ctx context.Context, ok bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	summary := bundleSummary{
		BundleID:   b.ref.BID,
		PrimaryURL: b.ref.PrimaryURL,
		CreatedAt:  time.Now(),
		Resources:  b.resources,
		OK:         ok,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("filesink: marshaling bundle summary: %w", err)
	}
	return os.WriteFile(filepath.Join(b.dir, "bundle.meta"), data, 0o644)
}
