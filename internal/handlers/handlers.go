package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/example/dermscan/internal/auth"
	"github.com/example/dermscan/internal/decision"
	"github.com/example/dermscan/internal/imagestore"
	"github.com/example/dermscan/internal/usecase"
)

// MaxUploadSize is the default upload limit for a single image.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers on top of
// the image itself.
const multipartOverhead = 64 << 10

// RegisterRoutes wires the HTTP handlers to the Gin router. A maxUpload of
// zero means MaxUploadSize.
func RegisterRoutes(router *gin.Engine, uc *usecase.PredictionUseCase, authMiddleware gin.HandlerFunc, maxUpload int64) {
	if maxUpload <= 0 {
		maxUpload = MaxUploadSize
	}
	h := &handler{uc: uc, maxUpload: maxUpload}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/predictions", authMiddleware)
	api.POST("", h.create)
	api.GET("", h.list)
	api.GET("/summary", h.summary)
	api.GET("/:id", h.get)
	api.DELETE("/:id", h.delete)
}

type handler struct {
	uc        *usecase.PredictionUseCase
	maxUpload int64
}

func (h *handler) create(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	file, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	ext, err := imagestore.Extension(file.Filename)
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only jpg, jpeg, png and jfif images are accepted"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is empty"})
		return
	}
	if mtype := mimetype.Detect(data); !mtype.Is("image/jpeg") && !mtype.Is("image/png") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image content must be JPEG or PNG"})
		return
	}

	result, err := h.uc.Predict(c.Request.Context(), userID, ext, data)
	if err != nil {
		mapError(c, err)
		return
	}

	c.JSON(http.StatusCreated, presentResult(result))
}

func (h *handler) list(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	results, err := h.uc.List(c.Request.Context(), userID)
	if err != nil {
		mapError(c, err)
		return
	}

	out := make([]gin.H, len(results))
	for i := range results {
		out[i] = presentResult(&results[i])
	}
	c.JSON(http.StatusOK, gin.H{"predictions": out})
}

func (h *handler) get(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	result, err := h.uc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, presentResult(result))
}

func (h *handler) delete(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	if err := h.uc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		mapError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) summary(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	summary, err := h.uc.GetSummary(c.Request.Context(), userID)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// presentResult is the only place percentages are rounded.
func presentResult(r *usecase.Result) gin.H {
	body := gin.H{
		"id":            r.Record.ID,
		"image":         r.Record.ImageReference,
		"primary_label": r.Record.PrimaryLabel,
		"unknown":       r.Record.PrimaryLabel == decision.UnknownLabel,
		"reference_url": r.ReferenceURL,
		"created_at":    r.Record.CreatedAt,
	}
	if r.Verdict == nil {
		return body
	}

	body["unknown"] = r.Verdict.Unknown
	body["confidence"] = decision.Round2(r.Verdict.Confidence)
	body["threshold"] = decision.Round2(r.Verdict.Threshold)

	alternatives := make([]gin.H, len(r.Alternatives))
	for i, a := range r.Alternatives {
		alternatives[i] = gin.H{
			"label":       a.Label,
			"probability": decision.Round2(a.Probability),
			"url":         a.URL,
		}
	}
	body["alternatives"] = alternatives
	return body
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
