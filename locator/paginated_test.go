package locator

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/kv/memstore"
	"github.com/ocfetch/fetcher/model"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, s)
	require.NoError(t, err)
	return d
}

func TestPaginatedAPIBundleLocator_CursorThenDateAdvance(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	dateEnd := mustDate(t, "2026-01-02")
	l := NewPaginatedAPIBundleLocator(store, "paginated", "scope1", PaginatedAPIConfig{
		BaseURL:           "https://api.example.test/search",
		DateStart:         mustDate(t, "2026-01-01"),
		DateEnd:           &dateEnd,
		MaxRecordsPerPage: 2,
		Fields:            PaginationFields{CursorField: "next_cursor", CountField: "count"},
	})

	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	u, err := url.Parse(batch[0].URL)
	require.NoError(t, err)
	assert.Equal(t, "*", u.Query().Get("curseur"))
	assert.Equal(t, "2", u.Query().Get("nombre"))

	// Full page: cursor advances, same date.
	require.NoError(t, l.HandleURLProcessed(ctx, batch[0], []model.BundleRef{{
		BID: "1", Meta: map[string]any{"next_cursor": "page2", "count": 2},
	}}))

	batch2, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch2, 1)
	u2, _ := url.Parse(batch2[0].URL)
	assert.Equal(t, "page2", u2.Query().Get("curseur"))

	// Short page: date rolls over, cursor resets to sentinel.
	require.NoError(t, l.HandleURLProcessed(ctx, batch2[0], []model.BundleRef{{
		BID: "2", Meta: map[string]any{"next_cursor": "page3", "count": 1},
	}}))

	batch3, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch3, 1)
	u3, _ := url.Parse(batch3[0].URL)
	assert.Equal(t, "*", u3.Query().Get("curseur"))
	assert.Contains(t, u3.Query().Get("q"), "2026-01-02")

	// Exhaust the range: short page on the last date ends the run.
	require.NoError(t, l.HandleURLProcessed(ctx, batch3[0], []model.BundleRef{{
		BID: "3", Meta: map[string]any{"next_cursor": "page4", "count": 0},
	}}))

	batch4, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch4)
}

func TestPaginatedAPIBundleLocator_NarrowingSentinelAdvancesDate(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	dateEnd := mustDate(t, "2026-01-05")
	narrowCalls := 0
	l := NewPaginatedAPIBundleLocator(store, "paginated", "scope2", PaginatedAPIConfig{
		BaseURL:           "https://api.example.test/search",
		DateStart:         mustDate(t, "2026-01-01"),
		DateEnd:           &dateEnd,
		MaxRecordsPerPage: 5,
		NarrowingStrategy: func(current string) string {
			narrowCalls++
			if current == "" {
				return "0"
			}
			return current // sentinel: unchanged means done narrowing
		},
		Fields: PaginationFields{CountField: "count"},
	})

	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// Short page triggers narrowing to "0" rather than a date advance.
	require.NoError(t, l.HandleURLProcessed(ctx, batch[0], []model.BundleRef{{
		BID: "1", Meta: map[string]any{"count": 1},
	}}))
	assert.Equal(t, "0", l.inner.blob.CurrentNarrow)

	batch2, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch2, 1)

	// Narrowing sentinel (unchanged) advances the date instead.
	require.NoError(t, l.HandleURLProcessed(ctx, batch2[0], []model.BundleRef{{
		BID: "2", Meta: map[string]any{"count": 1},
	}}))
	assert.Equal(t, "", l.inner.blob.CurrentNarrow)
	assert.Equal(t, "2026-01-02", l.inner.blob.CurrentDate.Format(dateLayout))
}
