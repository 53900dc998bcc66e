package locator

import (
	"context"
	"time"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// GapFillBundleLocator runs the same cursor-pagination algorithm as
// PaginatedAPIBundleLocator but iterates dates backward from DateEnd toward
// DateStart, to backfill historical gaps.
type GapFillBundleLocator struct {
	inner *dateCursorLocator
}

type GapFillConfig struct {
	BaseURL           string
	DateStart         time.Time
	DateEnd           time.Time
	MaxRecordsPerPage int
	DateFilter        func(dateStr string) bool
	QueryBuilder      QueryBuilder
	NarrowingStrategy NarrowingStrategy
	Fields            PaginationFields
	QueryParams       map[string]string
	BatchSize         int
}

func NewGapFillBundleLocator(store kv.Store, prefix, scope string, cfg GapFillConfig) *GapFillBundleLocator {
	start := cfg.DateStart
	return &GapFillBundleLocator{inner: &dateCursorLocator{
		BaseURL:           cfg.BaseURL,
		RangeEdge:         cfg.DateEnd,
		RangeLimit:        &start,
		StepDays:          -1,
		MaxRecordsPerPage: cfg.MaxRecordsPerPage,
		DateFilter:        cfg.DateFilter,
		QueryBuilder:      cfg.QueryBuilder,
		NarrowingStrategy: cfg.NarrowingStrategy,
		Fields:            cfg.Fields,
		QueryParams:       cfg.QueryParams,
		BatchSize:         cfg.BatchSize,
		state:             newDateCursorLocator(store, prefix, scope),
	}}
}

func (l *GapFillBundleLocator) PageInspector() func([]byte) map[string]any {
	return NewPageInspector(l.inner.Fields)
}

func (l *GapFillBundleLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	return l.inner.getNextURLs(ctx)
}

func (l *GapFillBundleLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	return l.inner.handleURLProcessed(ctx, req, refs)
}

func (l *GapFillBundleLocator) HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	return l.inner.handleURLError(ctx, req, errMsg)
}
