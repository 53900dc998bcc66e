package locator

import (
	"context"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// FileListBundleLocator yields a fixed, caller-supplied list of paths minus
// whatever processed_urls already records.
type FileListBundleLocator struct {
	Paths     []string
	BatchSize int // default 10

	state      persistentState
	processed  map[string]struct{}
	dispatched map[string]struct{} // yielded by this instance; identifies our own requests among broadcast callbacks
}

func NewFileListBundleLocator(store kv.Store, prefix, scope string, paths []string) *FileListBundleLocator {
	return &FileListBundleLocator{
		Paths:     paths,
		BatchSize: 10,
		state:     persistentState{Store: store, Prefix: prefix, Scope: scope},
	}
}

func (l *FileListBundleLocator) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return 10
}

func (l *FileListBundleLocator) ensureInitialized(ctx context.Context) error {
	if l.processed != nil {
		return nil
	}
	l.dispatched = make(map[string]struct{})
	processed, err := l.state.loadProcessed(ctx)
	if err != nil {
		return err
	}
	l.processed = processed
	return nil
}

func (l *FileListBundleLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	if err := l.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	// Yielded paths join processed_urls at yield time and are persisted
	// immediately, so a resumed run skips everything already handed out.
	var batch []model.RequestMeta
	for _, p := range l.Paths {
		if len(batch) >= l.batchSize() {
			break
		}
		if _, done := l.processed[p]; done {
			continue
		}
		batch = append(batch, model.RequestMeta{URL: p})
		l.processed[p] = struct{}{}
		l.dispatched[p] = struct{}{}
	}
	if len(batch) > 0 {
		if err := l.state.saveProcessed(ctx, l.processed); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func (l *FileListBundleLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	delete(l.dispatched, req.URL)
	return l.state.markProcessed(ctx, req, refs)
}

func (l *FileListBundleLocator) HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	return l.state.recordError(ctx, req.URL, errMsg)
}
