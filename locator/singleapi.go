package locator

import (
	"context"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// SingleAPIBundleLocator drains a fixed list of API URLs in batches of 10.
// Distinct from FileListBundleLocator only in domain
// (remote API endpoints vs. local/remote paths); both run the same
// drain-minus-processed loop, each in its own GetNextURLs, over the key
// layout and persistence that persistentState provides.
type SingleAPIBundleLocator struct {
	URLs      []string
	Headers   map[string]string
	BatchSize int // default 10

	state      persistentState
	processed  map[string]struct{}
	dispatched map[string]struct{} // yielded by this instance; identifies our own requests among broadcast callbacks
}

func NewSingleAPIBundleLocator(store kv.Store, prefix, scope string, urls []string) *SingleAPIBundleLocator {
	return &SingleAPIBundleLocator{
		URLs:      urls,
		BatchSize: 10,
		state:     persistentState{Store: store, Prefix: prefix, Scope: scope},
	}
}

func (l *SingleAPIBundleLocator) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return 10
}

func (l *SingleAPIBundleLocator) ensureInitialized(ctx context.Context) error {
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

func (l *SingleAPIBundleLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	if err := l.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	// Yielded URLs join processed_urls at yield time and are persisted
	// immediately, so a resumed run skips everything already handed out.
	var batch []model.RequestMeta
	for _, u := range l.URLs {
		if len(batch) >= l.batchSize() {
			break
		}
		if _, done := l.processed[u]; done {
			continue
		}
		batch = append(batch, model.RequestMeta{URL: u, Headers: l.Headers})
		l.processed[u] = struct{}{}
		l.dispatched[u] = struct{}{}
	}
	if len(batch) > 0 {
		if err := l.state.saveProcessed(ctx, l.processed); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func (l *SingleAPIBundleLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	delete(l.dispatched, req.URL)
	return l.state.markProcessed(ctx, req, refs)
}

func (l *SingleAPIBundleLocator) HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	return l.state.recordError(ctx, req.URL, errMsg)
}
