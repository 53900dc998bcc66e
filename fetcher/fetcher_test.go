package fetcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/locator"
	"github.com/ocfetch/fetcher/model"
)

type fakeLoader struct {
	mu    sync.Mutex
	loads []string
}

func (l *fakeLoader) Load(ctx context.Context, req model.RequestMeta, runCtx *model.FetchRunContext) ([]model.BundleRef, error) {
	l.mu.Lock()
	l.loads = append(l.loads, req.URL)
	l.mu.Unlock()
	return []model.BundleRef{{BID: model.NewBID(), PrimaryURL: req.URL, ResourcesCount: 1}}, nil
}

// fakeLocator yields a fixed batch exactly once, then reports exhaustion.
type fakeLocator struct {
	mu        sync.Mutex
	pending   []string
	yielded   bool
	processed []string
}

func (l *fakeLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.yielded {
		return nil, nil
	}
	l.yielded = true
	var out []model.RequestMeta
	for _, u := range l.pending {
		out = append(out, model.RequestMeta{URL: u})
	}
	return out, nil
}

func (l *fakeLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed = append(l.processed, req.URL)
	return nil
}

func TestFetcher_Run_DrainsInitialAndLocatorBatches(t *testing.T) {
	ld := &fakeLoader{}
	loc := &fakeLocator{pending: []string{"https://a", "https://b", "https://c"}}

	f := New(Recipe{Loader: ld, Locators: []locator.Locator{loc}})
	f.dequeueTimeout = 50 * time.Millisecond

	plan := &model.FetchPlan{
		InitialRequests: []model.RequestMeta{{URL: "https://seed"}},
		Concurrency:     2,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := f.Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 4, result.ProcessedCount)
	assert.Empty(t, result.Errors)

	ld.mu.Lock()
	assert.ElementsMatch(t, []string{"https://seed", "https://a", "https://b", "https://c"}, ld.loads)
	ld.mu.Unlock()

	// Completion callbacks are broadcast to every locator, including for
	// the plan-seeded request the locator itself never yielded.
	loc.mu.Lock()
	assert.ElementsMatch(t, []string{"https://seed", "https://a", "https://b", "https://c"}, loc.processed)
	loc.mu.Unlock()
}

func TestFetcher_Run_TerminatesWithNoWork(t *testing.T) {
	ld := &fakeLoader{}
	f := New(Recipe{Loader: ld})
	f.dequeueTimeout = 20 * time.Millisecond

	plan := &model.FetchPlan{Concurrency: 3}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := f.Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
}
