package locator

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/kv/memstore"
	"github.com/ocfetch/fetcher/model"
)

type fakeFileInfo struct {
	name    string
	modTime time.Time
	dir     bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

type fakeDirLister struct {
	entries []fs.FileInfo
}

func (f *fakeDirLister) ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	return f.entries, nil
}

func TestDirectoryBundleLocator_FiltersAndBatches(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	lister := &fakeDirLister{entries: []fs.FileInfo{
		fakeFileInfo{name: "a.txt"},
		fakeFileInfo{name: "b.log"},
		fakeFileInfo{name: "c.txt"},
		fakeFileInfo{name: "sub", dir: true},
	}}

	l := NewDirectoryBundleLocator(store, "dirloc", "/remote", lister)
	l.FilenamePattern = "*.txt"

	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	var urls []string
	for _, r := range batch {
		urls = append(urls, r.URL)
	}
	assert.ElementsMatch(t, []string{"/remote/a.txt", "/remote/c.txt"}, urls)

	require.NoError(t, l.HandleURLProcessed(ctx, model.RequestMeta{URL: "/remote/a.txt"}, []model.BundleRef{{BID: "1"}}))

	batch2, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch2) // both were marked processed at yield time

	// Yield-time persistence: a fresh instance over the same store never
	// re-yields c.txt even though its completion callback never arrived.
	l2 := NewDirectoryBundleLocator(store, "dirloc", "/remote", lister)
	l2.FilenamePattern = "*.txt"
	batch3, err := l2.GetNextURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch3)
}

func TestDirectoryBundleLocator_FileFilterByDatePrefix(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	lister := &fakeDirLister{entries: []fs.FileInfo{
		fakeFileInfo{name: "20230725_x.txt"},
		fakeFileInfo{name: "20230729_y.txt"},
	}}

	l := NewDirectoryBundleLocator(store, "dirloc", "/dated", lister)
	l.FilenamePattern = "*.txt"
	l.FileFilter = func(filename string) bool {
		return len(filename) >= 8 && filename[:8] >= "20230728"
	}

	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "/dated/20230729_y.txt", batch[0].URL)
}

func TestDirectoryBundleLocator_SortDescendingByModTime(t *testing.T) {
	store := memstore.New(memstore.Config{})
	defer store.Close()
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	lister := &fakeDirLister{entries: []fs.FileInfo{
		fakeFileInfo{name: "old.txt", modTime: older},
		fakeFileInfo{name: "new.txt", modTime: newer},
	}}

	l := NewDirectoryBundleLocator(store, "dirloc", "/sorted", lister)
	l.SortKey = func(name string, info fs.FileInfo) int64 { return info.ModTime().UnixNano() }
	l.SortDescending = true

	batch, err := l.GetNextURLs(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "/sorted/new.txt", batch[0].URL)
	assert.Equal(t, "/sorted/old.txt", batch[1].URL)
}
