package locator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/kv/memstore"
	"github.com/ocfetch/fetcher/model"
)

func TestRequeueFailedBundleLocator_YieldsUnderRetryBound(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	source := persistentState{Store: store, Prefix: "source", Scope: "scope1"}
	require.NoError(t, source.recordError(ctx, "https://a.test", "boom"))
	require.NoError(t, source.recordError(ctx, "https://a.test", "boom again")) // RetryCount now 1

	l := NewRequeueFailedBundleLocator(store, "source", "scope1", 2)
	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "https://a.test", batch[0].URL)

	// The orchestrator reports a failed retry via HandleURLError (bumping
	// RetryCount) before the processed notification.
	require.NoError(t, l.HandleURLError(ctx, batch[0], "still failing"))
	require.NoError(t, l.HandleURLProcessed(ctx, batch[0], nil))

	l2 := NewRequeueFailedBundleLocator(store, "source", "scope1", 2)
	batch2, err := l2.GetNextURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch2, "RetryCount reached MaxRetries, should stop yielding")
}

func TestRequeueFailedBundleLocator_SuccessClearsErrorRecord(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	source := persistentState{Store: store, Prefix: "source", Scope: "scope2"}
	require.NoError(t, source.recordError(ctx, "https://b.test", "boom"))

	l := NewRequeueFailedBundleLocator(store, "source", "scope2", 5)
	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, l.HandleURLProcessed(ctx, batch[0], []model.BundleRef{{BID: "1"}}))

	exists, err := store.Exists(ctx, source.errorKey("https://b.test"))
	require.NoError(t, err)
	assert.False(t, exists)
}
