package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/bbsboard/models"
	"github.com/cppla/bbsboard/objectstore"
)

const discardTimeout = 30 * time.Second

var (
	attachmentUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_attachment_uploads_total",
			Help: "Attachment uploads to object storage by result",
		},
		[]string{"result"},
	)
	attachmentDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_attachment_object_deletes_total",
			Help: "Attachment object deletions (cleanup and compensation) by result",
		},
		[]string{"result"},
	)
)

// FileUpload is one file part of a request.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
}

// Uploader pushes file parts to object storage. It keeps no state between calls.
type Uploader struct {
	storage     objectstore.Storage
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewUploader creates an Uploader. timeout bounds a whole Upload call and
// concurrency bounds the number of parallel object puts.
func NewUploader(storage objectstore.Storage, timeout time.Duration, concurrency int, logger *zap.Logger) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{storage: storage, timeout: timeout, concurrency: concurrency, logger: logger}
}

// Upload stores every non-empty file under bucket/prefix and returns one
// AttachedFile per stored file, in input order. Empty parts are skipped.
// Either every file is stored or none is: on failure the files already
// stored are deleted again and an error wrapping ErrUpload is returned.
func (u *Uploader) Upload(ctx context.Context, bucket, prefix string, files []FileUpload) ([]models.AttachedFile, error) {
	pending := make([]FileUpload, 0, len(files))
	for _, f := range files {
		if f.Size > 0 && f.Content != nil {
			pending = append(pending, f)
		}
	}
	attached := make([]models.AttachedFile, len(pending))
	if len(pending) == 0 {
		return attached, nil
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i := range pending {
		i, f := i, pending[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := objectKey(prefix, f.Name)
			url, err := u.storage.Put(gctx, bucket, key, f.Content, f.ContentType)
			if err != nil {
				attachmentUploads.WithLabelValues("error").Inc()
				return fmt.Errorf("upload %q: %w", f.Name, err)
			}
			attachmentUploads.WithLabelValues("ok").Inc()
			attached[i] = models.AttachedFile{
				FilePath:     url,
				ObjectKey:    key,
				OriginalName: f.Name,
				ContentType:  f.ContentType,
				Size:         f.Size,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		stored := make([]models.AttachedFile, 0, len(attached))
		for _, a := range attached {
			if a.ObjectKey != "" {
				stored = append(stored, a)
			}
		}
		u.logger.Warn("attachment upload failed, rolling back stored objects",
			zap.String("bucket", bucket), zap.Int("stored", len(stored)), zap.Error(err))
		u.Discard(ctx, bucket, stored)
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return attached, nil
}

// Discard deletes the objects behind files, best-effort. Failures are logged
// and counted, never returned: the caller's outcome is already decided.
func (u *Uploader) Discard(ctx context.Context, bucket string, files []models.AttachedFile) {
	if len(files) == 0 {
		return
	}
	// cleanup must outlive a canceled or timed-out request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	for _, f := range files {
		if f.ObjectKey == "" {
			continue
		}
		if err := u.storage.Delete(ctx, bucket, f.ObjectKey); err != nil {
			attachmentDeletes.WithLabelValues("error").Inc()
			u.logger.Error("orphaned attachment object",
				zap.String("bucket", bucket), zap.String("key", f.ObjectKey), zap.Error(err))
			continue
		}
		attachmentDeletes.WithLabelValues("ok").Inc()
	}
}

// objectKey builds prefix + random name, keeping a short sanitized extension.
func objectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if len(ext) > 10 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return prefix + uuid.NewString() + ext
}
