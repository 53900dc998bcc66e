package filesink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/model"
)

func TestSink_WriteResourceAndClose(t *testing.T) {
	root := t.TempDir()
	sink, err := New(Config{RootDir: root})
	require.NoError(t, err)

	ctx := context.Background()
	bc, err := sink.OpenBundle(ctx, model.BundleRef{BID: "abc123", PrimaryURL: "http://example.com/x"})
	require.NoError(t, err)

	require.NoError(t, bc.WriteResource(ctx, "/a/b.json", "application/json", 200, strings.NewReader(`{"ok":true}`)))
	require.NoError(t, bc.Close(ctx, true))

	bundleDir := filepath.Join(root, "bundle_abc123")
	data, err := os.ReadFile(filepath.Join(bundleDir, "a_b.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	metaData, err := os.ReadFile(filepath.Join(bundleDir, "a_b.json.meta"))
	require.NoError(t, err)
	var meta resourceSummary
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, "application/json", meta.ContentType)
	assert.Equal(t, 200, meta.Status)

	summaryData, err := os.ReadFile(filepath.Join(bundleDir, "bundle.meta"))
	require.NoError(t, err)
	var summary bundleSummary
	require.NoError(t, json.Unmarshal(summaryData, &summary))
	assert.True(t, summary.OK)
	assert.Equal(t, "abc123", summary.BundleID)
	require.Len(t, summary.Resources, 1)
}

func TestSink_NoSpoolFilesLeftBehind(t *testing.T) {
	root := t.TempDir()
	sink, err := New(Config{RootDir: root})
	require.NoError(t, err)

	ctx := context.Background()
	bc, err := sink.OpenBundle(ctx, model.BundleRef{BID: "bid1"})
	require.NoError(t, err)
	require.NoError(t, bc.WriteResource(ctx, "file.txt", "text/plain", 200, strings.NewReader("hello")))
	require.NoError(t, bc.Close(ctx, true))

	entries, err := os.ReadDir(filepath.Join(root, "bundle_bid1"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".spool-"), "no spool temp files should remain after Close")
	}
}

func TestSink_OpenBundleContainsTraversalAttemptsWithinRoot(t *testing.T) {
	root := t.TempDir()
	sink, err := New(Config{RootDir: root})
	require.NoError(t, err)

	// SafeFilename strips path separators before the bundle directory is
	// built, so a BID like "../../etc" becomes a literal single-component
	// directory name rather than escaping root.
	_, err = sink.OpenBundle(context.Background(), model.BundleRef{BID: "../../etc"})
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "bundle_"))
	assert.NotEqual(t, "etc", entries[0].Name())
}

func TestSink_ClosedEvenWhenNotOK(t *testing.T) {
	root := t.TempDir()
	sink, err := New(Config{RootDir: root})
	require.NoError(t, err)

	ctx := context.Background()
	bc, err := sink.OpenBundle(ctx, model.BundleRef{BID: "bidfail"})
	require.NoError(t, err)
	require.NoError(t, bc.Close(ctx, false))

	data, err := os.ReadFile(filepath.Join(root, "bundle_bidfail", "bundle.meta"))
	require.NoError(t, err)
	var summary bundleSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.False(t, summary.OK)
}
