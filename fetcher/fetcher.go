// Package fetcher implements the run orchestrator: a bounded work queue fed
// by a FetchPlan's seed requests and by polling a FetcherRecipe's locators,
// drained by a pool of worker goroutines. Grounded on worker/pool.go's
// Pool/Worker shape (per-worker goroutine loop, stopChan-style shutdown, a
// 5-second dequeue timeout) but generalized from a persistent Redis-backed
// job queue to an in-process channel, since a run's queue is scoped to a
// single process lifetime rather than shared across workers on other hosts.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ocfetch/fetcher/common"
	"github.com/ocfetch/fetcher/loader"
	"github.com/ocfetch/fetcher/locator"
	"github.com/ocfetch/fetcher/model"
)

// Recipe pairs one loader shared by every request with the set of
// locators that produce work for it.
type Recipe struct {
	Loader   loader.Loader
	Locators []locator.Locator
}

// Fetcher runs one FetchPlan to completion against a Recipe.
type Fetcher struct {
	Recipe Recipe
	Logger *logrus.Logger // optional; defaults to logrus.StandardLogger()

	// dequeueTimeout is the idle-poll interval ("5-second timeout");
	// overridable by tests, defaulting to 5s otherwise.
	dequeueTimeout time.Duration
}

func New(recipe Recipe) *Fetcher {
	return &Fetcher{Recipe: recipe}
}

func (f *Fetcher) logger() *logrus.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return logrus.StandardLogger()
}

func (f *Fetcher) timeout() time.Duration {
	if f.dequeueTimeout > 0 {
		return f.dequeueTimeout
	}
	return 5 * time.Second
}

// queueCapacity sizes the bounded channel well above plan.Concurrency so a
// full round of locator batches fits without the enqueuing goroutine
// stalling mid-drain.
func queueCapacity(concurrency int) int {
	capacity := concurrency * 16
	if capacity < 64 {
		capacity = 64
	}
	return capacity
}

// Run drives plan to completion: seeds the queue from plan.InitialRequests
// and an initial locator poll, then starts plan.Concurrency workers that
// drain it until every locator reports itself exhausted. The coordination
// primitives are a bounded channel, a mutex serializing all locator access
// (polling, completion callbacks, and the termination check; locator state
// is not required to be thread-safe), and a once-latched completion signal.
func (f *Fetcher) Run(ctx context.Context, plan *model.FetchPlan) (*model.FetchResult, error) {
	concurrency := plan.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	runCtx := plan.Context
	if runCtx == nil {
		runCtx = &model.FetchRunContext{RunID: model.NewBID()}
	}

	queue := make(chan model.RequestMeta, queueCapacity(concurrency))
	doneCh := make(chan struct{})
	var doneOnce sync.Once
	signalDone := func() { doneOnce.Do(func() { close(doneCh) }) }

	var pollMu sync.Mutex
	var processedCount int64
	var errMu sync.Mutex
	var errs []string

	for _, r := range plan.InitialRequests {
		select {
		case queue <- r:
		case <-ctx.Done():
			return f.result(runCtx, &processedCount, errs), ctx.Err()
		}
	}

	pollMu.Lock()
	initial := f.collectLocatorBatches(ctx)
	pollMu.Unlock()
	f.enqueue(ctx, queue, initial)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			f.runWorker(ctx, queue, doneCh, &pollMu, signalDone, runCtx, &processedCount, &errMu, &errs)
		}()
	}
	wg.Wait()

	return f.result(runCtx, &processedCount, errs), nil
}

func (f *Fetcher) result(runCtx *model.FetchRunContext, processedCount *int64, errs []string) *model.FetchResult {
	return &model.FetchResult{
		ProcessedCount: int(atomic.LoadInt64(processedCount)),
		Errors:         errs,
		Context:        runCtx,
	}
}

func (f *Fetcher) runWorker(
	ctx context.Context,
	queue chan model.RequestMeta,
	doneCh chan struct{},
	pollMu *sync.Mutex,
	signalDone func(),
	runCtx *model.FetchRunContext,
	processedCount *int64,
	errMu *sync.Mutex,
	errs *[]string,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-queue:
			f.handle(ctx, req, runCtx, pollMu, processedCount, errMu, errs)
		case <-doneCh:
			if !f.drainRemaining(ctx, queue, runCtx, pollMu, processedCount, errMu, errs) {
				return
			}
		case <-time.After(f.timeout()):
			if len(queue) > 0 {
				continue
			}
			if f.tryTerminate(ctx, queue, doneCh, pollMu, signalDone) {
				return
			}
		}
	}
}

// drainRemaining processes one already-buffered item after the completion
// latch fires, so requests enqueued just before termination aren't lost; it
// reports whether the worker should keep looping.
func (f *Fetcher) drainRemaining(ctx context.Context, queue chan model.RequestMeta, runCtx *model.FetchRunContext, pollMu *sync.Mutex, processedCount *int64, errMu *sync.Mutex, errs *[]string) bool {
	select {
	case req := <-queue:
		f.handle(ctx, req, runCtx, pollMu, processedCount, errMu, errs)
		return true
	default:
		return false
	}
}

// tryTerminate is called by an idle worker after its dequeue timeout fires
// and the queue looked empty. It re-checks under pollMu, polls every
// locator once, and latches completion if that poll also came up empty.
// The enqueue of a non-empty poll happens after releasing pollMu: a full
// queue must never block the lock holder, since workers need the same lock
// to deliver completion callbacks.
func (f *Fetcher) tryTerminate(ctx context.Context, queue chan model.RequestMeta, doneCh chan struct{}, pollMu *sync.Mutex, signalDone func()) bool {
	pollMu.Lock()

	select {
	case <-doneCh:
		pollMu.Unlock()
		return true
	default:
	}
	if len(queue) > 0 {
		pollMu.Unlock()
		return false
	}

	batch := f.collectLocatorBatches(ctx)
	if len(batch) == 0 {
		signalDone()
		pollMu.Unlock()
		return true
	}
	pollMu.Unlock()

	f.enqueue(ctx, queue, batch)
	return false
}

// collectLocatorBatches polls every locator once and returns the union of
// their batches. Callers must hold pollMu.
func (f *Fetcher) collectLocatorBatches(ctx context.Context) []model.RequestMeta {
	var out []model.RequestMeta
	for _, loc := range f.Recipe.Locators {
		reqs, err := loc.GetNextURLs(ctx)
		if err != nil {
			f.logger().WithError(fmt.Errorf("%w: %v", model.ErrLocator, err)).Warn("locator poll failed")
			continue
		}
		out = append(out, reqs...)
	}
	return out
}

func (f *Fetcher) enqueue(ctx context.Context, queue chan model.RequestMeta, reqs []model.RequestMeta) {
	for _, r := range reqs {
		select {
		case queue <- r:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fetcher) handle(ctx context.Context, req model.RequestMeta, runCtx *model.FetchRunContext, pollMu *sync.Mutex, processedCount *int64, errMu *sync.Mutex, errs *[]string) {
	// A panicking loader or locator callback must not take the worker down
	// with it; the request is recorded as failed and the worker loops on.
	defer func() {
		if r := recover(); r != nil {
			f.logger().WithFields(common.RecoveredPanic(r)).Error("worker recovered from panic")
			errMu.Lock()
			*errs = append(*errs, fmt.Sprintf("%s: panic: %v", req.URL, r))
			errMu.Unlock()
		}
	}()

	refs, err := f.Recipe.Loader.Load(ctx, req, runCtx)
	atomic.AddInt64(processedCount, 1)

	if err != nil {
		errMu.Lock()
		*errs = append(*errs, fmt.Sprintf("%s: %v", req.URL, err))
		errMu.Unlock()
	}

	// Every locator that supports completion callbacks hears about every
	// processed request, seed requests included; locators ignore URLs they
	// did not yield. The error notification goes out first so the locator
	// still recognizes the URL as in flight when it records the failure.
	pollMu.Lock()
	defer pollMu.Unlock()
	for _, loc := range f.Recipe.Locators {
		if len(refs) == 0 {
			if reporter, ok := loc.(locator.ErrorReporter); ok {
				msg := "no bundles produced"
				if err != nil {
					msg = err.Error()
				}
				if repErr := reporter.HandleURLError(ctx, req, msg); repErr != nil {
					f.logger().WithError(repErr).Warn("locator HandleURLError failed")
				}
			}
		}
		if procErr := loc.HandleURLProcessed(ctx, req, refs); procErr != nil {
			f.logger().WithError(procErr).Warn("locator HandleURLProcessed failed")
		}
	}
}
