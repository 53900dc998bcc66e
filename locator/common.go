package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// persistentState centralizes the KV key layout every concrete locator
// shares: processed-URL sets, a pending-work queue, a
// small state blob (cursor/date/initialized), and per-URL error/result
// records. Locators embed it and never format these keys themselves.
type persistentState struct {
	Store  kv.Store
	Prefix string // locator_prefix, e.g. "paginated_api"
	Scope  string // identity within the locator kind, e.g. a remote_dir or base_url hash
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

func (p persistentState) processedKey() string {
	return fmt.Sprintf("%s:processed_urls:%s", p.Prefix, p.Scope)
}

func (p persistentState) queueKey() string {
	return fmt.Sprintf("%s:file_queue:%s", p.Prefix, p.Scope)
}

func (p persistentState) stateKey() string {
	return fmt.Sprintf("%s:state:%s", p.Prefix, p.Scope)
}

func (p persistentState) errorKey(url string) string {
	return fmt.Sprintf("%s:errors:%s:%s", p.Prefix, p.Scope, hashURL(url))
}

func (p persistentState) resultKey(url string) string {
	return fmt.Sprintf("%s:results:%s:%s", p.Prefix, p.Scope, hashURL(url))
}

// persistedStateBlob mirrors the LocatorState fields that are persisted
// under "<locator_prefix>:state:<scope>".
type persistedStateBlob struct {
	CurrentDate     *time.Time `json:"current_date,omitempty"`
	CurrentCursor   string     `json:"current_cursor"`
	CurrentNarrow   string     `json:"current_narrow,omitempty"`
	Initialized     bool       `json:"initialized"`
	LastRequestTime float64    `json:"last_request_time"`
	LastUpdated     time.Time  `json:"last_updated"`
}

func (p persistentState) loadProcessed(ctx context.Context) (map[string]struct{}, error) {
	var list []string
	if err := p.Store.Get(ctx, p.processedKey(), &list); err != nil {
		return make(map[string]struct{}), nil // first run: no persisted set yet
	}
	out := make(map[string]struct{}, len(list))
	for _, u := range list {
		out[u] = struct{}{}
	}
	return out, nil
}

func (p persistentState) saveProcessed(ctx context.Context, processed map[string]struct{}) error {
	list := make([]string, 0, len(processed))
	for u := range processed {
		list = append(list, u)
	}
	return p.Store.Put(ctx, p.processedKey(), list, model.ProgressTTL)
}

func (p persistentState) loadQueue(ctx context.Context) ([]string, error) {
	var queue []string
	if err := p.Store.Get(ctx, p.queueKey(), &queue); err != nil {
		return nil, nil
	}
	return queue, nil
}

func (p persistentState) saveQueue(ctx context.Context, queue []string) error {
	return p.Store.Put(ctx, p.queueKey(), queue, model.ProgressTTL)
}

func (p persistentState) loadState(ctx context.Context) (persistedStateBlob, error) {
	var blob persistedStateBlob
	if err := p.Store.Get(ctx, p.stateKey(), &blob); err != nil {
		return persistedStateBlob{CurrentCursor: model.SentinelCursor}, nil
	}
	return blob, nil
}

func (p persistentState) saveState(ctx context.Context, blob persistedStateBlob) error {
	blob.LastUpdated = time.Now()
	return p.Store.Put(ctx, p.stateKey(), blob, model.ProgressTTL)
}

func (p persistentState) recordError(ctx context.Context, url, message string) error {
	rec := model.ErrorRecord{URL: url, ErrorMessage: message, Timestamp: time.Now()}
	var prior model.ErrorRecord
	if err := p.Store.Get(ctx, p.errorKey(url), &prior); err == nil {
		rec.RetryCount = prior.RetryCount + 1
	}
	return p.Store.Put(ctx, p.errorKey(url), rec, model.ErrorTTL)
}

func (p persistentState) recordResult(ctx context.Context, url string, refs []model.BundleRef) error {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.BID)
	}
	result := model.BundleResult{
		URL:         url,
		Timestamp:   time.Now(),
		Success:     len(refs) > 0,
		BundleCount: len(refs),
		BundleRefs:  ids,
	}
	return p.Store.Put(ctx, p.resultKey(url), result, model.ResultTTL)
}

// markProcessed records the long-TTL result record for a completed
// request. Error records are not written here: the orchestrator delivers
// the failure message through HandleURLError before the processed
// notification, so recording again would double-count the retry.
func (p persistentState) markProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	return p.recordResult(ctx, req.URL, refs)
}
