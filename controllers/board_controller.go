package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/bbsboard/models"
	"github.com/cppla/bbsboard/services"
	"github.com/cppla/bbsboard/utils"
)

const (
	filesField = "files"
	// slack for the text fields and multipart framing around the files
	formOverheadBytes = 1 << 20

	msgInvalidRequest = "invalid request"
	msgInternal       = "internal server error"
)

// BoardService is the board lifecycle the handlers delegate to.
type BoardService interface {
	Add(ctx context.Context, category int, draft *models.Board, files []services.FileUpload, authorization string) (*models.Board, error)
	Detail(ctx context.Context, category int, no uint) (*models.Board, error)
	List(ctx context.Context, category int) ([]models.Board, error)
	Update(ctx context.Context, category int, no uint, draft *models.Board, files []services.FileUpload, authorization string) (*models.Board, error)
	Delete(ctx context.Context, category int, no uint, authorization string) error
	DeleteAttachment(ctx context.Context, category int, boardNo, fileNo uint, authorization string) error
}

// UploadLimits bound the multipart part of add and update requests.
type UploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

// BoardController serves /boards.
type BoardController struct {
	svc    BoardService
	limits UploadLimits
	logger *zap.Logger
}

// NewBoardController creates a new BoardController instance.
func NewBoardController(svc BoardService, limits UploadLimits, logger *zap.Logger) *BoardController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardController{svc: svc, limits: limits, logger: logger}
}

// Create handles POST /boards/:category.
func (b *BoardController) Create(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		return
	}
	draft, files, cleanup, ok := b.bindDraft(ctx)
	if !ok {
		return
	}
	defer cleanup()

	created, err := b.svc.Add(ctx.Request.Context(), category, draft, files, ctx.GetHeader("Authorization"))
	if err != nil {
		b.fail(ctx, err)
		return
	}
	utils.Success(ctx, created)
}

// List handles GET /boards/:category.
func (b *BoardController) List(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		return
	}
	boards, err := b.svc.List(ctx.Request.Context(), category)
	if err != nil {
		b.fail(ctx, err)
		return
	}
	utils.Success(ctx, boards)
}

// Detail handles GET /boards/:category/:no.
func (b *BoardController) Detail(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		return
	}
	no, ok := numberParam(ctx, "no")
	if !ok {
		return
	}
	board, err := b.svc.Detail(ctx.Request.Context(), category, no)
	if err != nil {
		b.fail(ctx, err)
		return
	}
	utils.Success(ctx, board)
}

// Update handles PUT /boards/:category/:no.
func (b *BoardController) Update(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		return
	}
	no, ok := numberParam(ctx, "no")
	if !ok {
		return
	}
	draft, files, cleanup, ok := b.bindDraft(ctx)
	if !ok {
		return
	}
	defer cleanup()

	updated, err := b.svc.Update(ctx.Request.Context(), category, no, draft, files, ctx.GetHeader("Authorization"))
	if err != nil {
		b.fail(ctx, err)
		return
	}
	utils.Success(ctx, updated)
}

// Delete handles DELETE /boards/:category/:no.
func (b *BoardController) Delete(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		return
	}
	no, ok := numberParam(ctx, "no")
	if !ok {
		return
	}
	if err := b.svc.Delete(ctx.Request.Context(), category, no, ctx.GetHeader("Authorization")); err != nil {
		b.fail(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

// DeleteFile handles DELETE /boards/:category/:no/files/:fileNo.
func (b *BoardController) DeleteFile(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		return
	}
	boardNo, ok := numberParam(ctx, "no")
	if !ok {
		return
	}
	fileNo, ok := numberParam(ctx, "fileNo")
	if !ok {
		return
	}
	err := b.svc.DeleteAttachment(ctx.Request.Context(), category, boardNo, fileNo, ctx.GetHeader("Authorization"))
	if err != nil {
		b.fail(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

// bindDraft reads title, content and an optional post number from the form
// and opens every file part. The returned cleanup closes the opened parts.
func (b *BoardController) bindDraft(ctx *gin.Context) (*models.Board, []services.FileUpload, func(), bool) {
	if b.limits.MaxFiles > 0 && b.limits.MaxFileSize > 0 {
		limit := int64(b.limits.MaxFiles)*b.limits.MaxFileSize + formOverheadBytes
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	}

	var headers []*multipart.FileHeader
	form, err := ctx.MultipartForm()
	switch {
	case err == nil:
		headers = form.File[filesField]
	case errors.Is(err, http.ErrNotMultipart):
	case isBodyTooLarge(err):
		utils.Failure(ctx, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body too large, at most %d files of %d bytes each", b.limits.MaxFiles, b.limits.MaxFileSize))
		return nil, nil, nil, false
	default:
		utils.Failure(ctx, http.StatusBadRequest, msgInvalidRequest)
		return nil, nil, nil, false
	}

	title := strings.TrimSpace(utils.SanitizeText(ctx.PostForm("title")))
	if title == "" {
		utils.Failure(ctx, http.StatusBadRequest, "title cannot be empty")
		return nil, nil, nil, false
	}
	draft := &models.Board{
		Title:   title,
		Content: utils.Sanitize(ctx.PostForm("content")),
	}
	if raw := strings.TrimSpace(ctx.PostForm("no")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			utils.Failure(ctx, http.StatusBadRequest, msgInvalidRequest)
			return nil, nil, nil, false
		}
		draft.No = uint(n)
	}

	if b.limits.MaxFiles > 0 && len(headers) > b.limits.MaxFiles {
		utils.Failure(ctx, http.StatusBadRequest, fmt.Sprintf("too many files, at most %d allowed", b.limits.MaxFiles))
		return nil, nil, nil, false
	}

	files := make([]services.FileUpload, 0, len(headers))
	cleanup := func() {
		for _, f := range files {
			if c, ok := f.Content.(multipart.File); ok {
				_ = c.Close()
			}
		}
	}
	for _, fh := range headers {
		if b.limits.MaxFileSize > 0 && fh.Size > b.limits.MaxFileSize {
			cleanup()
			utils.Failure(ctx, http.StatusBadRequest, fmt.Sprintf("file %q is too large", fh.Filename))
			return nil, nil, nil, false
		}
		if fh.Size == 0 {
			files = append(files, services.FileUpload{Name: fh.Filename})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			cleanup()
			b.logger.Warn("open multipart file failed", zap.String("file", fh.Filename), zap.Error(err))
			utils.Failure(ctx, http.StatusBadRequest, msgInvalidRequest)
			return nil, nil, nil, false
		}
		files = append(files, services.FileUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}
	return draft, files, cleanup, true
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

// fail renders err as a failure envelope.
func (b *BoardController) fail(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		utils.Failure(ctx, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
	case services.IsRejection(err):
		utils.Failure(ctx, http.StatusOK, rejectionMessage(err))
	case errors.Is(err, services.ErrUpload):
		b.logger.Warn("attachment upload failed", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
		utils.Failure(ctx, http.StatusBadGateway, services.ErrUpload.Error())
	default:
		b.logger.Error("board request failed", zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path), zap.Error(err))
		utils.Failure(ctx, http.StatusInternalServerError, msgInternal)
	}
}

// rejectionMessage unwraps to the sentinel so wrapped details never reach clients.
func rejectionMessage(err error) string {
	for _, r := range []error{
		services.ErrPostNotFound,
		services.ErrUpdateDenied,
		services.ErrDeleteDenied,
		services.ErrAttachmentMismatch,
		services.ErrAttachmentDenied,
		services.ErrConflict,
	} {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return err.Error()
}

func categoryParam(ctx *gin.Context) (int, bool) {
	category, err := strconv.Atoi(ctx.Param("category"))
	if err != nil || category < 1 {
		utils.Failure(ctx, http.StatusBadRequest, msgInvalidRequest)
		return 0, false
	}
	return category, true
}

func numberParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || n == 0 {
		utils.Failure(ctx, http.StatusBadRequest, msgInvalidRequest)
		return 0, false
	}
	return uint(n), true
}
