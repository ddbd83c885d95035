package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cppla/bbsboard/models"
	"github.com/cppla/bbsboard/store"
)

// BoardStore is the persistence the board service needs.
// Implementations return store.ErrNotFound for absent rows and
// store.ErrVersionConflict when a compare-and-swap update loses.
type BoardStore interface {
	Create(ctx context.Context, b *models.Board) error
	Get(ctx context.Context, no uint) (*models.Board, error)
	List(ctx context.Context, category int) ([]models.Board, error)
	Update(ctx context.Context, b *models.Board, expectedVersion int) error
	Delete(ctx context.Context, no uint) ([]models.AttachedFile, error)
	IncreaseViewCount(ctx context.Context, no uint) error
	GetAttachedFile(ctx context.Context, no uint) (*models.AttachedFile, error)
	DeleteAttachedFile(ctx context.Context, no uint) error
}

// Identifier resolves the caller behind an Authorization header.
type Identifier interface {
	Extract(authorization string) (uint, error)
}

// ListCache caches per-category lists. Implementations must tolerate outages.
// Set must drop a list whose generation was superseded by Invalidate.
type ListCache interface {
	Get(ctx context.Context, category int) ([]models.Board, bool)
	Generation(ctx context.Context, category int) (int64, bool)
	Set(ctx context.Context, category int, generation int64, boards []models.Board)
	Invalidate(ctx context.Context, categories ...int)
}

// BoardOptions are the object storage coordinates for board attachments.
type BoardOptions struct {
	Bucket     string
	PathPrefix string
}

// BoardService runs the board lifecycle: identity, ownership checks,
// attachment upload and store mutation. It holds no per-request state.
type BoardService struct {
	identity Identifier
	store    BoardStore
	uploader *Uploader
	cache    ListCache
	opts     BoardOptions
	logger   *zap.Logger
}

// NewBoardService wires the service. cache may be nil.
func NewBoardService(identity Identifier, store BoardStore, uploader *Uploader, cache ListCache, opts BoardOptions, logger *zap.Logger) *BoardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardService{
		identity: identity,
		store:    store,
		uploader: uploader,
		cache:    cache,
		opts:     opts,
		logger:   logger,
	}
}

// Add creates a post owned by the caller. Any writer in draft is discarded.
func (s *BoardService) Add(ctx context.Context, category int, draft *models.Board, files []FileUpload, authorization string) (*models.Board, error) {
	writer, err := s.identify(ctx, authorization)
	if err != nil {
		return nil, err
	}

	draft.No = 0
	draft.Category = category
	draft.WriterNo = writer
	draft.Writer = models.Member{No: writer}
	draft.ViewCount = 0
	draft.Version = 1

	attached, err := s.uploader.Upload(ctx, s.opts.Bucket, s.opts.PathPrefix, files)
	if err != nil {
		return nil, err
	}
	draft.AttachedFiles = attached

	if err := s.store.Create(ctx, draft); err != nil {
		s.logger.Error("create post failed", zap.Uint("writer", writer), zap.Error(err))
		s.uploader.Discard(ctx, s.opts.Bucket, attached)
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.invalidate(ctx, category)
	return draft, nil
}

// Detail returns a post and counts the view. Every call counts.
func (s *BoardService) Detail(ctx context.Context, category int, no uint) (*models.Board, error) {
	b, err := s.store.Get(ctx, no)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("get post %d: %w", no, err)
	}

	if err := s.store.IncreaseViewCount(ctx, no); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("increase view count %d: %w", no, err)
	}
	b.ViewCount++
	s.invalidate(ctx, b.Category)
	return b, nil
}

// List returns the posts of a category in store order (newest first).
func (s *BoardService) List(ctx context.Context, category int) ([]models.Board, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		if boards, ok := s.cache.Get(ctx, category); ok {
			return boards, nil
		}
		// read before the store so a concurrent invalidation voids our Set
		generation, cacheable = s.cache.Generation(ctx, category)
	}

	boards, err := s.store.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list category %d: %w", category, err)
	}
	if cacheable {
		s.cache.Set(ctx, category, generation, boards)
	}
	return boards, nil
}

// Update replaces title, content and category of the caller's own post and
// attaches the newly uploaded files. The returned post lists only the files
// uploaded by this call; earlier attachments stay until deleted explicitly.
func (s *BoardService) Update(ctx context.Context, category int, no uint, draft *models.Board, files []FileUpload, authorization string) (*models.Board, error) {
	caller, err := s.identify(ctx, authorization)
	if err != nil {
		return nil, err
	}
	if draft.No != 0 && draft.No != no {
		return nil, ErrUpdateDenied
	}

	existing, err := s.store.Get(ctx, no)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUpdateDenied
		}
		return nil, fmt.Errorf("get post %d: %w", no, err)
	}
	if existing.WriterNo != caller {
		return nil, ErrUpdateDenied
	}
	previousCategory := existing.Category

	attached, err := s.uploader.Upload(ctx, s.opts.Bucket, s.opts.PathPrefix, files)
	if err != nil {
		return nil, err
	}

	existing.Title = draft.Title
	existing.Content = draft.Content
	existing.Category = category
	existing.AttachedFiles = attached

	if err := s.store.Update(ctx, existing, existing.Version); err != nil {
		s.uploader.Discard(ctx, s.opts.Bucket, attached)
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		s.logger.Error("update post failed", zap.Uint("post", no), zap.Error(err))
		return nil, fmt.Errorf("update post %d: %w", no, err)
	}

	s.invalidate(ctx, previousCategory, category)
	return existing, nil
}

// Delete removes the caller's own post together with its attachments.
func (s *BoardService) Delete(ctx context.Context, category int, no uint, authorization string) error {
	caller, err := s.identify(ctx, authorization)
	if err != nil {
		return err
	}

	existing, err := s.store.Get(ctx, no)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeleteDenied
		}
		return fmt.Errorf("get post %d: %w", no, err)
	}
	if existing.WriterNo != caller {
		return ErrDeleteDenied
	}

	removed, err := s.store.Delete(ctx, no)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeleteDenied
		}
		s.logger.Error("delete post failed", zap.Uint("post", no), zap.Error(err))
		return fmt.Errorf("delete post %d: %w", no, err)
	}

	s.uploader.Discard(ctx, s.opts.Bucket, removed)
	s.invalidate(ctx, existing.Category)
	return nil
}

// DeleteAttachment removes one attachment of the caller's own post. The file
// must belong to boardNo; a file of another post is rejected even when the
// caller owns that other post too.
func (s *BoardService) DeleteAttachment(ctx context.Context, category int, boardNo, fileNo uint, authorization string) error {
	caller, err := s.identify(ctx, authorization)
	if err != nil {
		return err
	}

	file, err := s.store.GetAttachedFile(ctx, fileNo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAttachmentMismatch
		}
		return fmt.Errorf("get attached file %d: %w", fileNo, err)
	}
	if file.BoardNo != boardNo {
		return ErrAttachmentMismatch
	}

	b, err := s.store.Get(ctx, boardNo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAttachmentMismatch
		}
		return fmt.Errorf("get post %d: %w", boardNo, err)
	}
	if b.WriterNo != caller {
		return ErrAttachmentDenied
	}

	if err := s.store.DeleteAttachedFile(ctx, fileNo); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAttachmentMismatch
		}
		return fmt.Errorf("delete attached file %d: %w", fileNo, err)
	}

	s.uploader.Discard(ctx, s.opts.Bucket, []models.AttachedFile{*file})
	s.invalidate(ctx, b.Category)
	return nil
}

// identify resolves the caller once per request: an identity already
// verified for this header by the transport is reused.
func (s *BoardService) identify(ctx context.Context, authorization string) (uint, error) {
	if no, ok := identityFromContext(ctx, authorization); ok {
		return no, nil
	}
	return s.identity.Extract(authorization)
}

func (s *BoardService) invalidate(ctx context.Context, categories ...int) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, categories...)
	}
}
