package locator

import (
	"context"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// RequeueFailedBundleLocator is an optional addition: it scans the error
// records another locator wrote under
// "<prefix>:errors:<scope>:" and re-yields any with RetryCount < MaxRetries,
// giving up permanently once a URL's RetryCount reaches the bound. A FetcherRecipe may
// omit it entirely without changing core behavior.
type RequeueFailedBundleLocator struct {
	Store      kv.Store
	Prefix     string
	Scope      string
	MaxRetries int
	BatchSize  int           // default 10
	Serializer kv.Serializer // defaults to kv.JSONSerializer{}; must match the Store's own encoding

	state      persistentState
	dispatched map[string]struct{}
}

func NewRequeueFailedBundleLocator(store kv.Store, prefix, scope string, maxRetries int) *RequeueFailedBundleLocator {
	return &RequeueFailedBundleLocator{
		Store:      store,
		Prefix:     prefix,
		Scope:      scope,
		MaxRetries: maxRetries,
		BatchSize:  10,
		Serializer: kv.JSONSerializer{},
		state:      persistentState{Store: store, Prefix: prefix, Scope: scope},
		dispatched: make(map[string]struct{}),
	}
}

func (l *RequeueFailedBundleLocator) serializer() kv.Serializer {
	if l.Serializer != nil {
		return l.Serializer
	}
	return kv.JSONSerializer{}
}

func (l *RequeueFailedBundleLocator) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return 10
}

func (l *RequeueFailedBundleLocator) errorKeyPrefix() string {
	return l.Prefix + ":errors:" + l.Scope + ":"
}

func (l *RequeueFailedBundleLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	start := l.errorKeyPrefix()
	end := start + "\xff"
	pairs, err := l.Store.RangeGet(ctx, start, end, 0)
	if err != nil {
		return nil, err
	}

	var batch []model.RequestMeta
	for _, pair := range pairs {
		var rec model.ErrorRecord
		if err := l.serializer().Decode(pair.Value, &rec); err != nil {
			continue
		}
		if rec.RetryCount >= l.MaxRetries {
			continue
		}
		if _, inFlight := l.dispatched[rec.URL]; inFlight {
			continue
		}
		batch = append(batch, model.RequestMeta{URL: rec.URL})
		l.dispatched[rec.URL] = struct{}{}
		if len(batch) >= l.batchSize() {
			break
		}
	}
	return batch, nil
}

func (l *RequeueFailedBundleLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	delete(l.dispatched, req.URL)
	if len(refs) > 0 {
		if _, err := l.Store.Delete(ctx, l.state.errorKey(req.URL)); err != nil {
			return err
		}
		return l.state.recordResult(ctx, req.URL, refs)
	}
	// Failed retry: the refreshed error record (with its bumped RetryCount)
	// was already written by HandleURLError.
	return nil
}

func (l *RequeueFailedBundleLocator) HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	if _, mine := l.dispatched[req.URL]; !mine {
		return nil
	}
	return l.state.recordError(ctx, req.URL, errMsg)
}
