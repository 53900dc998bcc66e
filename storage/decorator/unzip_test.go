package decorator

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/storage"
)

// recordingSink captures every WriteResource call it receives, in order.
type recordingSink struct {
	written []writtenResource
	closed  bool
	closeOK bool
}

type writtenResource struct {
	name        string
	contentType string
	status      int
	body        []byte
}

func (s *recordingSink) OpenBundle(ctx context.Context, ref model.BundleRef) (storage.BundleContext, error) {
	return &recordingContext{sink: s}, nil
}

type recordingContext struct {
	sink *recordingSink
}

func (c *recordingContext) WriteResource(ctx context.Context, name, contentType string, status int, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.sink.written = append(c.sink.written, writtenResource{name: name, contentType: contentType, status: status, body: body})
	return nil
}

func (c *recordingContext) Close(ctx context.Context, ok bool) error {
	c.sink.closed = true
	c.sink.closeOK = ok
	return nil
}

func TestUnzipResourceDecorator_GzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("<html/>"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	sink := &recordingSink{}
	d := &UnzipResourceDecorator{Inner: sink}
	ctx, err := d.OpenBundle(context.Background(), model.BundleRef{BID: "b1"})
	require.NoError(t, err)

	require.NoError(t, ctx.WriteResource(context.Background(), "https://h/x.html.gz", "", 200, &buf))
	require.NoError(t, ctx.Close(context.Background(), true))

	require.Len(t, sink.written, 1)
	assert.Equal(t, "https://h/x.html", sink.written[0].name)
	assert.Equal(t, []byte("<html/>"), sink.written[0].body)
}

func TestUnzipResourceDecorator_ZipBypassForArchiveURL(t *testing.T) {
	raw := []byte("PK-not-really-a-valid-zip-but-bypassed")

	sink := &recordingSink{}
	d := &UnzipResourceDecorator{Inner: sink}
	ctx, err := d.OpenBundle(context.Background(), model.BundleRef{BID: "b1"})
	require.NoError(t, err)

	require.NoError(t, ctx.WriteResource(context.Background(), "https://h/archive.zip", "", 200, bytes.NewReader(raw)))
	require.NoError(t, ctx.Close(context.Background(), true))

	require.Len(t, sink.written, 1)
	assert.Equal(t, "https://h/archive.zip", sink.written[0].name)
	assert.Equal(t, raw, sink.written[0].body)
}

func TestUnzipResourceDecorator_ZipSingleEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("inner.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	sink := &recordingSink{}
	d := &UnzipResourceDecorator{Inner: sink}
	ctx, err := d.OpenBundle(context.Background(), model.BundleRef{BID: "b1"})
	require.NoError(t, err)

	require.NoError(t, ctx.WriteResource(context.Background(), "https://h/data", "", 200, &buf))
	require.NoError(t, ctx.Close(context.Background(), true))

	require.Len(t, sink.written, 1)
	assert.Equal(t, "https://h/data/inner.txt", sink.written[0].name)
	assert.Equal(t, "application/octet-stream", sink.written[0].contentType)
	assert.Equal(t, []byte("payload"), sink.written[0].body)
}

func TestUnzipResourceDecorator_FallsBackOnDecodeError(t *testing.T) {
	raw := []byte{0x1F, 0x8B, 0x00, 0x01, 0x02} // gzip magic, invalid body

	sink := &recordingSink{}
	d := &UnzipResourceDecorator{Inner: sink}
	ctx, err := d.OpenBundle(context.Background(), model.BundleRef{BID: "b1"})
	require.NoError(t, err)

	require.NoError(t, ctx.WriteResource(context.Background(), "https://h/x.gz", "", 200, bytes.NewReader(raw)))
	require.NoError(t, ctx.Close(context.Background(), true))

	require.Len(t, sink.written, 1)
	assert.Equal(t, "https://h/x.gz", sink.written[0].name)
	assert.Equal(t, raw, sink.written[0].body)
}
