package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

const dateLayout = "2006-01-02"

// QueryBuilder builds the "q" query parameter for a given date and optional
// narrowing value (empty string means "no narrowing applied yet").
type QueryBuilder func(dateStr, narrowing string) string

// NarrowingStrategy advances a narrowing value. Returning its argument
// unchanged is the sentinel meaning "no more narrowings for this date"
// (a "siren:99" sentinel from one source API generalizes to this rule).
type NarrowingStrategy func(current string) string

// PaginationFields names the JSON response fields a page's metadata is
// read from.
type PaginationFields struct {
	CursorField string
	TotalField  string
	CountField  string
}

// NewPageInspector returns a loader.PageInspector-compatible function (kept
// untyped here to avoid a locator->loader import) that decodes a JSON
// response body and lifts the configured pagination fields into bundle
// metadata under the same key names, so HandleURLProcessed can read them
// back from BundleRef.Meta.
func NewPageInspector(fields PaginationFields) func(body []byte) map[string]any {
	return func(body []byte) map[string]any {
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil
		}
		out := make(map[string]any, 3)
		for _, f := range []string{fields.CursorField, fields.TotalField, fields.CountField} {
			if f == "" {
				continue
			}
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
		return out
	}
}

// dateCursorLocator is the shared algorithm behind PaginatedAPIBundleLocator
// and GapFillBundleLocator: walk a date range one day at a
// time (forward or backward), and within each date page through a cursor
// until the response comes back short of MaxRecordsPerPage, at which point a
// NarrowingStrategy is consulted before moving to the next date.
type dateCursorLocator struct {
	BaseURL           string
	RangeEdge         time.Time // the date iteration starts from
	RangeLimit        *time.Time
	StepDays          int // +1 for PaginatedAPIBundleLocator, -1 for GapFillBundleLocator
	MaxRecordsPerPage int
	DateFilter        func(dateStr string) bool
	QueryBuilder      QueryBuilder
	NarrowingStrategy NarrowingStrategy
	Fields            PaginationFields
	QueryParams       map[string]string
	BatchSize         int // default 5

	state      persistentState
	dispatched map[string]bool
	blob       persistedStateBlob
}

func newDateCursorLocator(store kv.Store, prefix, scope string) persistentState {
	return persistentState{Store: store, Prefix: prefix, Scope: scope}
}

func (l *dateCursorLocator) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return 5
}

func (l *dateCursorLocator) defaultQueryBuilder(dateStr, narrowing string) string {
	if narrowing == "" {
		return dateStr
	}
	return dateStr + ":" + narrowing
}

func (l *dateCursorLocator) buildQuery(dateStr string) string {
	if l.QueryBuilder != nil {
		return l.QueryBuilder(dateStr, l.blob.CurrentNarrow)
	}
	return l.defaultQueryBuilder(dateStr, l.blob.CurrentNarrow)
}

func (l *dateCursorLocator) exhausted() bool {
	if l.RangeLimit == nil {
		return false
	}
	if l.StepDays > 0 {
		return l.blob.CurrentDate.After(*l.RangeLimit)
	}
	return l.blob.CurrentDate.Before(*l.RangeLimit)
}

func (l *dateCursorLocator) advanceDate() {
	next := l.blob.CurrentDate.AddDate(0, 0, l.StepDays)
	l.blob.CurrentDate = &next
	l.blob.CurrentCursor = model.SentinelCursor
	l.blob.CurrentNarrow = ""
}

func (l *dateCursorLocator) ensureInitialized(ctx context.Context) error {
	if l.dispatched != nil {
		return nil
	}
	l.dispatched = make(map[string]bool)

	blob, err := l.state.loadState(ctx)
	if err != nil {
		return err
	}
	if blob.Initialized {
		l.blob = blob
		return nil
	}

	start := l.RangeEdge
	l.blob = persistedStateBlob{
		CurrentDate:   &start,
		CurrentCursor: model.SentinelCursor,
		Initialized:   true,
	}
	return l.state.saveState(ctx, l.blob)
}

func (l *dateCursorLocator) buildURL() (string, error) {
	dateStr := l.blob.CurrentDate.Format(dateLayout)
	q := url.Values{}
	q.Set("nombre", fmt.Sprintf("%d", l.MaxRecordsPerPage))
	q.Set("curseur", l.blob.CurrentCursor)
	q.Set("q", l.buildQuery(dateStr))
	for k, v := range l.QueryParams {
		q.Set(k, v)
	}
	parsed, err := url.Parse(l.BaseURL)
	if err != nil {
		return "", err
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// getNextURLs skips filtered-out dates, advancing state forward/backward
// until it finds a date to query or runs past RangeLimit.
func (l *dateCursorLocator) getNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	if err := l.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	var batch []model.RequestMeta
	for len(batch) < l.batchSize() {
		if l.exhausted() {
			break
		}
		dateStr := l.blob.CurrentDate.Format(dateLayout)
		if l.DateFilter != nil && !l.DateFilter(dateStr) {
			l.advanceDate()
			if err := l.state.saveState(ctx, l.blob); err != nil {
				return nil, err
			}
			continue
		}

		target, err := l.buildURL()
		if err != nil {
			return nil, err
		}
		if l.dispatched[target] {
			break // awaiting the one outstanding page's response
		}
		l.dispatched[target] = true
		batch = append(batch, model.RequestMeta{URL: target})
		break // cursor for the next page is unknown until this one resolves
	}
	return batch, nil
}

func (l *dateCursorLocator) handleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	if err := l.ensureInitialized(ctx); err != nil {
		return err
	}
	// Callbacks are broadcast to every locator; only a page this locator
	// dispatched may advance its cursor or date.
	if !l.dispatched[req.URL] {
		return nil
	}
	delete(l.dispatched, req.URL)

	var meta map[string]any
	if len(refs) > 0 {
		meta = refs[0].Meta
	}
	count := extractInt(meta, l.Fields.CountField)
	fullPage := count >= l.MaxRecordsPerPage && l.MaxRecordsPerPage > 0

	if fullPage {
		if cursor := extractString(meta, l.Fields.CursorField); cursor != "" {
			l.blob.CurrentCursor = cursor
		}
	} else if l.NarrowingStrategy != nil {
		next := l.NarrowingStrategy(l.blob.CurrentNarrow)
		if next == l.blob.CurrentNarrow {
			l.advanceDate()
		} else {
			l.blob.CurrentNarrow = next
			l.blob.CurrentCursor = model.SentinelCursor
		}
	} else {
		l.advanceDate()
	}

	if err := l.state.saveState(ctx, l.blob); err != nil {
		return err
	}
	return l.state.markProcessed(ctx, req, refs)
}

func (l *dateCursorLocator) handleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	if !l.dispatched[req.URL] {
		return nil
	}
	return l.state.recordError(ctx, req.URL, errMsg)
}

func extractInt(meta map[string]any, field string) int {
	if meta == nil || field == "" {
		return 0
	}
	switch v := meta[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func extractString(meta map[string]any, field string) string {
	if meta == nil || field == "" {
		return ""
	}
	if v, ok := meta[field].(string); ok {
		return v
	}
	return ""
}
