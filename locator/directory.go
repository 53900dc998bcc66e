package locator

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// DirLister is the subset of sftpmgr.Manager the locator needs, declared
// locally so tests can substitute a fake without an SFTP server.
type DirLister interface {
	ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error)
}

// SortKey extracts a comparable value from a directory entry (e.g. ModTime
// for chronological ordering). A nil SortKey leaves listing order as the
// SFTP server returned it.
type SortKey func(name string, info fs.FileInfo) int64

// DirectoryBundleLocator lists a remote directory via the SFTP Manager,
// filters entries by glob + an optional predicate, optionally orders them,
// and drains the resulting queue in batches.
type DirectoryBundleLocator struct {
	SFTP            DirLister
	RemoteDir       string
	FilenamePattern string // glob; empty matches everything
	FileFilter      func(filename string) bool
	SortKey         SortKey
	SortDescending  bool
	BatchSize       int // default 10

	state      persistentState
	processed  map[string]struct{}
	queue      []string
	dispatched map[string]struct{} // yielded by this instance; identifies our own requests among broadcast callbacks
}

// NewDirectoryBundleLocator wires the persisted-state scope to remoteDir so
// multiple directories under one store/prefix never collide.
func NewDirectoryBundleLocator(store kv.Store, prefix, remoteDir string, sftp DirLister) *DirectoryBundleLocator {
	return &DirectoryBundleLocator{
		SFTP:      sftp,
		RemoteDir: remoteDir,
		BatchSize: 10,
		state:     persistentState{Store: store, Prefix: prefix, Scope: remoteDir},
	}
}

func (l *DirectoryBundleLocator) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return 10
}

func (l *DirectoryBundleLocator) matches(name string) bool {
	if l.FilenamePattern == "" {
		return true
	}
	ok, err := filepath.Match(l.FilenamePattern, name)
	return err == nil && ok
}

func (l *DirectoryBundleLocator) ensureInitialized(ctx context.Context) error {
	if l.processed != nil {
		return nil
	}
	l.dispatched = make(map[string]struct{})
	processed, err := l.state.loadProcessed(ctx)
	if err != nil {
		return err
	}
	l.processed = processed

	blob, err := l.state.loadState(ctx)
	if err != nil {
		return err
	}
	if blob.Initialized {
		queue, err := l.state.loadQueue(ctx)
		if err != nil {
			return err
		}
		l.queue = queue
		return nil
	}

	entries, err := l.SFTP.ReadDir(ctx, l.RemoteDir)
	if err != nil {
		return err
	}

	type candidate struct {
		name string
		info fs.FileInfo
	}
	var candidates []candidate
	for _, info := range entries {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		if !l.matches(name) {
			continue
		}
		if l.FileFilter != nil && !l.FileFilter(name) {
			continue
		}
		candidates = append(candidates, candidate{name: name, info: info})
	}

	if l.SortKey != nil {
		sort.SliceStable(candidates, func(i, j int) bool {
			ki, kj := l.SortKey(candidates[i].name, candidates[i].info), l.SortKey(candidates[j].name, candidates[j].info)
			if l.SortDescending {
				return ki > kj
			}
			return ki < kj
		})
	}

	queue := make([]string, 0, len(candidates))
	for _, c := range candidates {
		queue = append(queue, path.Join(l.RemoteDir, c.name))
	}
	l.queue = queue

	if err := l.state.saveQueue(ctx, queue); err != nil {
		return err
	}
	return l.state.saveState(ctx, persistedStateBlob{Initialized: true, CurrentCursor: model.SentinelCursor})
}

// GetNextURLs drains up to BatchSize not-yet-processed paths from the
// persisted queue, in batches of up to 10 by default. Every yielded path
// is added to processed_urls and persisted at yield time, so a resumed run
// never re-yields a URL that was already handed to the orchestrator.
func (l *DirectoryBundleLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	if err := l.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	var batch []model.RequestMeta
	for _, remotePath := range l.queue {
		if len(batch) >= l.batchSize() {
			break
		}
		if _, done := l.processed[remotePath]; done {
			continue
		}
		batch = append(batch, model.RequestMeta{URL: remotePath})
		l.processed[remotePath] = struct{}{}
		l.dispatched[remotePath] = struct{}{}
	}
	if len(batch) > 0 {
		if err := l.state.saveProcessed(ctx, l.processed); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func (l *DirectoryBundleLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil // another locator's request
	}
	delete(l.dispatched, req.URL)
	l.queue = removeURL(l.queue, req.URL)
	if err := l.state.saveQueue(ctx, l.queue); err != nil {
		return err
	}
	return l.state.markProcessed(ctx, req, refs)
}

func (l *DirectoryBundleLocator) HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	return l.state.recordError(ctx, req.URL, errMsg)
}

func removeURL(queue []string, url string) []string {
	out := make([]string, 0, len(queue))
	for _, u := range queue {
		if u != url {
			out = append(out, u)
		}
	}
	return out
}
