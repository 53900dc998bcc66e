package loader

import (
	"context"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/sftpmgr"
	"github.com/ocfetch/fetcher/storage"
)

// SFTPLoader resolves req.URL as a remote path via an sftpmgr.Manager: a
// directory is listed and filtered by FilenamePattern, recursing into each
// matching file; a plain file is opened and streamed in one resource.
// It follows the "SFTP Loader" contract.
type SFTPLoader struct {
	SFTP            *sftpmgr.Manager
	Storage         storage.Sink
	FilenamePattern string // glob; empty matches everything
	Logger          *logrus.Logger
}

func (l *SFTPLoader) logger() *logrus.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logrus.StandardLogger()
}

func (l *SFTPLoader) matches(name string) bool {
	if l.FilenamePattern == "" {
		return true
	}
	ok, err := filepath.Match(l.FilenamePattern, name)
	return err == nil && ok
}

// Load resolves req.URL as a remote SFTP path, opening one bundle per file
// it streams (a directory produces one bundle per matching file, not one
// bundle for the whole directory).
func (l *SFTPLoader) Load(ctx context.Context, req model.RequestMeta, runCtx *model.FetchRunContext) ([]model.BundleRef, error) {
	log := l.logger().WithFields(logrus.Fields{"component": "loader.sftp", "url": req.URL})
	if runCtx != nil {
		log = log.WithField("run_id", runCtx.RunID)
	}

	info, err := l.SFTP.Stat(ctx, req.URL)
	if err != nil {
		log.WithError(err).Warn("stat failed")
		return nil, nil
	}

	if info.IsDir() {
		return l.loadDir(ctx, req.URL, log)
	}
	ref, ok := l.loadFile(ctx, req.URL, log)
	if !ok {
		return nil, nil
	}
	return []model.BundleRef{ref}, nil
}

func (l *SFTPLoader) loadDir(ctx context.Context, dir string, log *logrus.Entry) ([]model.BundleRef, error) {
	entries, err := l.SFTP.ReadDir(ctx, dir)
	if err != nil {
		log.WithError(err).Warn("listing directory failed")
		return nil, nil
	}

	var refs []model.BundleRef
	for _, entry := range entries {
		childPath := path.Join(dir, entry.Name())
		if entry.IsDir() {
			childRefs, _ := l.loadDir(ctx, childPath, log)
			refs = append(refs, childRefs...)
			continue
		}
		if !l.matches(entry.Name()) {
			continue
		}
		if ref, ok := l.loadFile(ctx, childPath, log); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

const sftpChunkSize = 8 * 1024

// loadFile opens one bundle for path and streams its contents through in
// 8 KiB chunks; the underlying sftpmgr.Open already
// buffers the whole remote read under its connection lock, so this reader
// re-chunks only to honor the streaming contract the storage sink expects.
func (l *SFTPLoader) loadFile(ctx context.Context, remotePath string, log *logrus.Entry) (model.BundleRef, bool) {
	r, err := l.SFTP.Open(ctx, remotePath)
	if err != nil {
		log.WithError(err).WithField("path", remotePath).Warn("opening remote file failed")
		return model.BundleRef{}, false
	}
	defer r.Close()

	ref := model.BundleRef{
		BID:        model.NewBID(),
		PrimaryURL: remotePath,
	}

	bundleCtx, err := l.Storage.OpenBundle(ctx, ref)
	if err != nil {
		log.WithError(err).Error("opening bundle failed")
		return model.BundleRef{}, false
	}

	ok := false
	defer func() {
		if closeErr := bundleCtx.Close(ctx, ok); closeErr != nil {
			log.WithError(closeErr).Error("closing bundle failed")
		}
	}()

	if err := bundleCtx.WriteResource(ctx, remotePath, "application/octet-stream", 200, &chunkedReader{r: r, size: sftpChunkSize}); err != nil {
		log.WithError(err).Error("writing resource failed")
		return model.BundleRef{}, false
	}

	ok = true
	ref.ResourcesCount = 1
	return ref, true
}

// chunkedReader wraps r so Read never returns more than size bytes at a
// time, honoring the 8 KiB streaming chunk size for SFTP transfers without
// buffering the whole file twice.
type chunkedReader struct {
	r    interface{ Read([]byte) (int, error) }
	size int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > c.size {
		p = p[:c.size]
	}
	return c.r.Read(p)
}
