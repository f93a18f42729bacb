package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/blobstore"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// multipartSlack covers the multipart framing around the file part.
const multipartSlack = 64 << 10

// inlineTypes are the media types served for display. Anything else is sent
// as an octet-stream attachment so uploads never run as active content.
var inlineTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Blobs is the storage behind the upload endpoints.
type Blobs interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// UploadHandler accepts supporting media and serves it back by reference.
type UploadHandler struct {
	store    Blobs
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadHandler creates a new UploadHandler accepting files up to maxBytes.
func NewUploadHandler(store Blobs, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes, logger: logger}
}

// Register mounts POST /api/upload and GET /uploads/:name.
func (h *UploadHandler) Register(r gin.IRouter) {
	r.POST("/api/upload", h.Upload)
	r.GET("/uploads/:name", h.Serve)
}

// Upload handles POST /api/upload with a multipart "file" field and returns
// {"url": "/uploads/<name>"}.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartSlack)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		RecordUpload(false)
		badRequest(c, "file", "multipart field \"file\" is required")
		return
	}
	if fh.Size > h.maxBytes {
		h.tooLarge(c)
		return
	}
	if fh.Size == 0 {
		RecordUpload(false)
		badRequest(c, "file", "file is empty")
		return
	}

	f, err := fh.Open()
	if err != nil {
		RecordUpload(false)
		writeError(c, h.logger, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		RecordUpload(false)
		writeError(c, h.logger, err)
		return
	}
	if int64(len(data)) > h.maxBytes {
		h.tooLarge(c)
		return
	}

	name, err := h.store.Save(c.Request.Context(), fh.Filename, data)
	if err != nil {
		RecordUpload(false)
		writeError(c, h.logger, err)
		return
	}
	RecordUpload(true)
	h.logger.Info("media uploaded", zap.String("name", name), zap.Int("bytes", len(data)))
	c.JSON(http.StatusOK, gin.H{"url": "/uploads/" + name})
}

func (h *UploadHandler) tooLarge(c *gin.Context) {
	RecordUpload(false)
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": "file exceeds upload limit",
		"code":  model.CodeValidation,
		"field": "file",
	})
}

// Serve handles GET /uploads/:name.
func (h *UploadHandler) Serve(c *gin.Context) {
	name := c.Param("name")
	data, err := h.store.Get(c.Request.Context(), name)
	if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrInvalidName) {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found", "code": model.CodeNotFound})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("X-Content-Type-Options", "nosniff")
	ct, ok := inlineTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		ct = "application/octet-stream"
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	c.Data(http.StatusOK, ct, data)
}
