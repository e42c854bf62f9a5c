package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/domain"
	"github.com/asafaviv-devops/image-gallery/internal/metrics"
	"github.com/asafaviv-devops/image-gallery/internal/service"
)

// multipartOverhead leaves room for form fields and boundaries on top of the file itself.
const multipartOverhead = 1 << 20

type Handler struct {
	service service.GalleryService
	cfg     *config.Config
	metrics *metrics.Metrics
	log     *zap.Logger
}

type uploadForm struct {
	Title       string `form:"title" binding:"required,min=1,max=200"`
	Description string `form:"description" binding:"max=1000"`
	Tags        string `form:"tags"`
}

type updateRequest struct {
	Title       *string   `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string   `json:"description" binding:"omitempty,max=1000"`
	Tags        *[]string `json:"tags"`
}

type healthResponse struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	S3Connection bool   `json:"s3_connection"`
}

func NewHandler(service service.GalleryService, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

func (h *Handler) ListImages(c *gin.Context) {
	images, err := h.service.List(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list images", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list images"})
		return
	}

	h.metrics.SetImagesStored(len(images))
	c.JSON(http.StatusOK, images)
}

func (h *Handler) GetImage(c *gin.Context) {
	image, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get image")
		return
	}

	c.JSON(http.StatusOK, image)
}

func (h *Handler) UploadImage(c *gin.Context) {
	maxSize := h.cfg.App.MaxUploadSize
	tooLarge := fmt.Sprintf("File size must be less than %dMB", maxSize>>20)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		h.rejectUpload(c, "No image file provided", err)
		return
	}

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		h.rejectUpload(c, "Invalid image metadata: "+err.Error(), err)
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		h.rejectUpload(c, "File must be an image", nil)
		return
	}

	if file.Size > maxSize {
		h.rejectUpload(c, tooLarge, nil)
		return
	}

	f, err := file.Open()
	if err != nil {
		h.log.Error("Failed to open file", zap.Error(err))
		h.metrics.TrackUpload(metrics.StatusError, 0)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		h.log.Error("Failed to read file", zap.Error(err))
		h.metrics.TrackUpload(metrics.StatusError, 0)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	if int64(len(data)) > maxSize {
		h.rejectUpload(c, tooLarge, nil)
		return
	}

	rec, err := h.service.Upload(c.Request.Context(), domain.UploadInput{
		Data:        data,
		Filename:    file.Filename,
		ContentType: contentType,
		Title:       form.Title,
		Description: form.Description,
		Tags:        ParseTags(form.Tags),
	})
	if err != nil {
		h.log.Error("Failed to upload image", zap.Error(err))
		h.metrics.TrackUpload(metrics.StatusError, 0)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload image"})
		return
	}
	h.metrics.TrackUpload(metrics.StatusSuccess, rec.Size)

	image, err := h.service.Get(c.Request.Context(), rec.ID)
	if err != nil {
		h.respondError(c, err, "Failed to upload image")
		return
	}

	c.JSON(http.StatusCreated, image)
}

func (h *Handler) UpdateImage(c *gin.Context) {
	id := c.Param("id")

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update: " + err.Error()})
		return
	}

	_, err := h.service.UpdateMetadata(c.Request.Context(), id, domain.MetadataUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		h.respondError(c, err, "Failed to update image")
		return
	}

	image, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to update image")
		return
	}

	c.JSON(http.StatusOK, image)
}

func (h *Handler) DeleteImage(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.service.Get(c.Request.Context(), id); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.metrics.TrackDeletion(metrics.StatusError)
		}
		h.respondError(c, err, "Failed to delete image")
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		status := metrics.StatusError
		if errors.Is(err, domain.ErrStorageUnavailable) {
			status = metrics.StatusFailed
		}
		h.metrics.TrackDeletion(status)
		h.log.Error("Failed to delete image", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete image"})
		return
	}

	h.metrics.TrackDeletion(metrics.StatusSuccess)
	c.Status(http.StatusNoContent)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.metrics.UpdateUptime()

	ok := h.service.CheckConnection(c.Request.Context())
	h.metrics.TrackHealthCheck(ok)

	status := "healthy"
	if !ok {
		status = "degraded"
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:       status,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		S3Connection: ok,
	})
}

func (h *Handler) GetUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(
		"<h1>Image Gallery</h1><p>API is running under <code>/api/images</code>.</p>"))
}

func (h *Handler) respondError(c *gin.Context, err error, message string) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	h.log.Error(message, zap.String("id", c.Param("id")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

func (h *Handler) rejectUpload(c *gin.Context, message string, err error) {
	if err != nil {
		h.log.Info("Upload rejected", zap.String("reason", message), zap.Error(err))
	}
	h.metrics.TrackUpload(metrics.StatusFailed, 0)
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// ParseTags splits a comma-separated tag string, trimming entries and dropping empty ones.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
