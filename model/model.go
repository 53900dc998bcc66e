// Package model defines the data types shared across the fetcher: the unit of
// work (RequestMeta), the artifact produced for it (BundleRef), and the
// bookkeeping records locators persist to the KV store between runs.
package model

import "time"

// RequestMeta identifies one unit of work. The dedup key is URL.
type RequestMeta struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Depth   int               `json:"depth"`
	Referer *string           `json:"referer,omitempty"`
}

// BundleRef is created by a loader at bundle-open time and is the handle the
// orchestrator and locators use to refer to a fetched artifact afterward.
type BundleRef struct {
	BID            string         `json:"bid"`
	PrimaryURL     string         `json:"primary_url"`
	ResourcesCount int            `json:"resources_count"`
	StorageKey     *string        `json:"storage_key,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// ResourceMeta describes one resource written within a bundle.
type ResourceMeta struct {
	URL         string            `json:"url"`
	Status      *int              `json:"status,omitempty"`
	ContentType *string           `json:"content_type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Note        *string           `json:"note,omitempty"`
}

// FetchRunContext is created once by the entry point and threaded through
// every locator and loader call for the lifetime of a run.
type FetchRunContext struct {
	RunID  string
	Shared map[string]any
}

// Value returns a shared context value, mirroring the semantics of a plain map.
func (c *FetchRunContext) Value(key string) (any, bool) {
	if c == nil || c.Shared == nil {
		return nil, false
	}
	v, ok := c.Shared[key]
	return v, ok
}

// SetValue stores a shared context value, initializing the map lazily.
func (c *FetchRunContext) SetValue(key string, value any) {
	if c.Shared == nil {
		c.Shared = make(map[string]any)
	}
	c.Shared[key] = value
}

// FetchPlan is the input to a single orchestrator run.
type FetchPlan struct {
	InitialRequests []RequestMeta
	Context         *FetchRunContext
	Concurrency     int
}

// FetchResult is the output of a single orchestrator run.
type FetchResult struct {
	ProcessedCount int
	Errors         []string
	Context        *FetchRunContext
}

// LocatorState is the persisted, resumable state of one locator.
type LocatorState struct {
	ProcessedURLs   map[string]struct{} `json:"-"`
	ProcessedList   []string            `json:"processed_urls"`
	URLQueue        []string            `json:"url_queue"`
	Cursor          string              `json:"current_cursor"`
	CurrentDate     *time.Time          `json:"current_date,omitempty"`
	Initialized     bool                `json:"initialized"`
	LastRequestTime float64             `json:"last_request_time"`
	LastUpdated     time.Time           `json:"last_updated"`
}

// SentinelCursor is the initial/reset cursor value for a fresh date.
const SentinelCursor = "*"

// NormalizeForPersist snapshots ProcessedURLs into ProcessedList for encoding.
func (s *LocatorState) NormalizeForPersist() {
	s.ProcessedList = make([]string, 0, len(s.ProcessedURLs))
	for u := range s.ProcessedURLs {
		s.ProcessedList = append(s.ProcessedList, u)
	}
}

// HydrateFromPersist rebuilds ProcessedURLs from the persisted list.
func (s *LocatorState) HydrateFromPersist() {
	s.ProcessedURLs = make(map[string]struct{}, len(s.ProcessedList))
	for _, u := range s.ProcessedList {
		s.ProcessedURLs[u] = struct{}{}
	}
}

// ErrorRecord is a per-URL failure note persisted with a short TTL.
type ErrorRecord struct {
	URL          string    `json:"url"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
	RetryCount   int       `json:"retry_count"`
}

// BundleResult is a per-URL outcome note persisted with a long TTL.
type BundleResult struct {
	URL         string    `json:"url"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	BundleCount int       `json:"bundle_count"`
	BundleRefs  []string  `json:"bundle_refs"`
}

// TTL conventions used throughout the locator and KV packages.
const (
	ProgressTTL = 7 * 24 * time.Hour
	ErrorTTL    = 24 * time.Hour
	ResultTTL   = 30 * 24 * time.Hour
)
