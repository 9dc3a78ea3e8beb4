package evidence

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/logging"
)

// Handlers provides HTTP endpoints for evidence upload and retrieval.
type Handlers struct {
	service *Service
}

// NewHandlers creates evidence HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Upload handles POST /v1/evidence (multipart form, field "file").
func (h *Handlers) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Multipart field 'file' is required.",
		})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Could not read uploaded file.",
		})
		return
	}
	defer func() { _ = src.Close() }()

	// Read one byte past the video limit so oversized uploads are
	// detected without buffering arbitrarily large bodies.
	content, err := io.ReadAll(io.LimitReader(src, MaxVideoBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Could not read uploaded file.",
		})
		return
	}
	if int64(len(content)) > MaxVideoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "file_too_large",
			"message": "Evidence files are limited to 5MB for images and 50MB for videos.",
		})
		return
	}

	f, err := h.service.Upload(c.Request.Context(), auth.UserID(c), fileHeader.Filename, content)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedType):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "unsupported_format",
				"message": "Images must be JPEG, PNG, or WebP; videos must be MP4 or WebM.",
			})
		case errors.Is(err, ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "file_too_large",
				"message": "Evidence files are limited to 5MB for images and 50MB for videos.",
			})
		case errors.Is(err, ErrEmpty):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "empty_file",
				"message": "Uploaded file is empty.",
			})
		default:
			logging.L(c.Request.Context()).Error("evidence upload failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to store evidence.",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          f.ID,
		"url":         URL(f.ID),
		"contentType": f.ContentType,
		"kind":        f.Kind,
		"sizeBytes":   f.SizeBytes,
	})
}

// Get handles GET /v1/evidence/:id
func (h *Handlers) Get(c *gin.Context) {
	f, content, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Unknown evidence ID.",
			})
			return
		}
		logging.L(c.Request.Context()).Error("evidence fetch failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to fetch evidence.",
		})
		return
	}

	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, f.ContentType, content)
}
