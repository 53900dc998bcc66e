package loader

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ocfetch/fetcher/common"
	"github.com/ocfetch/fetcher/httpmgr"
	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/storage"
)

// ErrorHandler inspects a response's status code and reports whether the
// bundle should be kept. Returning false discards the bundle; the loader
// yields no BundleRefs for that request.
type ErrorHandler func(url string, status int) bool

// PageInspector extracts extra bundle metadata (e.g. a pagination cursor)
// from a buffered response body. When set, the loader reads the full body
// into memory to run it, then replays the same bytes to storage. Used by
// PaginatedAPIBundleLocator/GapFillBundleLocator, which need the parsed
// cursor/total/count fields HandleURLProcessed can't otherwise see.
type PageInspector func(body []byte) map[string]any

// HTTPLoader issues one GET per RequestMeta via an httpmgr.Manager, opens
// one bundle, and writes one primary resource whose body is the response.
// It follows the "HTTP/API Loader" contract.
type HTTPLoader struct {
	HTTP          *httpmgr.Manager
	Storage       storage.Sink
	ErrorHandler  ErrorHandler   // optional
	PageInspector PageInspector  // optional
	Logger        *logrus.Logger // optional; defaults to logrus.StandardLogger()
}

func (l *HTTPLoader) logger() *logrus.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logrus.StandardLogger()
}

// Load fetches req.URL and writes its body as the sole resource of a new
// bundle. Any transport, storage, or error-handler failure is logged and
// reported as zero bundles with a nil error: the orchestrator's own error
// accounting is driven by HandleURLProcessed receiving an empty ref list,
// not by Load's error return.
func (l *HTTPLoader) Load(ctx context.Context, req model.RequestMeta, runCtx *model.FetchRunContext) ([]model.BundleRef, error) {
	start := time.Now()
	log := l.logger().WithFields(logrus.Fields{"component": "loader.http", "url": req.URL})
	if runCtx != nil {
		log = log.WithField("run_id", runCtx.RunID)
	}

	headers := make(http.Header, len(req.Headers))
	for k, v := range req.Headers {
		headers.Set(k, v)
	}
	if req.Referer != nil {
		headers.Set("Referer", *req.Referer)
	}

	resp, err := l.HTTP.Request(ctx, http.MethodGet, req.URL, headers, true)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if l.ErrorHandler != nil && !l.ErrorHandler(req.URL, resp.StatusCode) {
		log.WithField("status", resp.StatusCode).Info("error handler rejected response, discarding bundle")
		return nil, nil
	}

	ref := model.BundleRef{
		BID:        model.NewBID(),
		PrimaryURL: req.URL,
		Meta: map[string]any{
			"status_code": resp.StatusCode,
		},
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" {
		ref.Meta["content_type"] = contentType
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			ref.Meta["content_length"] = n
		}
	}

	var body io.Reader = resp.Body
	if l.PageInspector != nil {
		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			log.WithError(err).Error("reading response body failed")
			return nil, nil
		}
		for k, v := range l.PageInspector(buf) {
			ref.Meta[k] = v
		}
		body = bytes.NewReader(buf)
	}

	bundleCtx, err := l.Storage.OpenBundle(ctx, ref)
	if err != nil {
		log.WithError(err).Error("opening bundle failed")
		return nil, nil
	}

	ok := false
	defer func() {
		if closeErr := bundleCtx.Close(ctx, ok); closeErr != nil {
			log.WithError(closeErr).Error("closing bundle failed")
		}
	}()

	if err := bundleCtx.WriteResource(ctx, req.URL, contentType, resp.StatusCode, body); err != nil {
		log.WithError(err).Error("writing resource failed")
		return nil, nil
	}

	ok = true
	ref.ResourcesCount = 1
	log.WithFields(common.BundleFields(ref.BID, ref.PrimaryURL, ref.ResourcesCount, time.Since(start))).Info("bundle written")
	return []model.BundleRef{ref}, nil
}
