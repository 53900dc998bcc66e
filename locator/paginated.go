package locator

import (
	"context"
	"time"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// PaginatedAPIBundleLocator walks a date range forward from DateStart,
// cursor-paging through each date via the HTTP Manager.
type PaginatedAPIBundleLocator struct {
	inner *dateCursorLocator
}

// PaginatedAPIConfig mirrors the PaginatedApiBundleLocator
// parameters: base_url, date_start, date_end?, max_records_per_page, plus
// the optional date_filter/query_builder/narrowing_strategy hooks and the
// pagination_strategy field names.
type PaginatedAPIConfig struct {
	BaseURL           string
	DateStart         time.Time
	DateEnd           *time.Time
	MaxRecordsPerPage int
	DateFilter        func(dateStr string) bool
	QueryBuilder      QueryBuilder
	NarrowingStrategy NarrowingStrategy
	Fields            PaginationFields
	QueryParams       map[string]string
	BatchSize         int
}

func NewPaginatedAPIBundleLocator(store kv.Store, prefix, scope string, cfg PaginatedAPIConfig) *PaginatedAPIBundleLocator {
	return &PaginatedAPIBundleLocator{inner: &dateCursorLocator{
		BaseURL:           cfg.BaseURL,
		RangeEdge:         cfg.DateStart,
		RangeLimit:        cfg.DateEnd,
		StepDays:          1,
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

// PageInspector returns the HTTPLoader hook that feeds this locator's
// cursor/total/count extraction, wired by the caller assembling the loader.
func (l *PaginatedAPIBundleLocator) PageInspector() func([]byte) map[string]any {
	return NewPageInspector(l.inner.Fields)
}

func (l *PaginatedAPIBundleLocator) GetNextURLs(ctx context.Context) ([]model.RequestMeta, error) {
	return l.inner.getNextURLs(ctx)
}

func (l *PaginatedAPIBundleLocator) HandleURLProcessed(ctx context.Context, req model.RequestMeta, refs []model.BundleRef) error {
	return l.inner.handleURLProcessed(ctx, req, refs)
}

func (l *PaginatedAPIBundleLocator) HandleURLError(ctx context.Context, req model.RequestMeta, errMsg string) error {
	return l.inner.handleURLError(ctx, req, errMsg)
}
