package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/analysis"
	"github.com/Skufu/pneumoscan/internal/auth"
	"github.com/Skufu/pneumoscan/internal/diagnosis"
	"github.com/Skufu/pneumoscan/internal/model"
)

// fail maps err to a status code and an {"error": ...} body. Server-side
// failures are logged; their details never reach the client.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "image is too large"
	case errors.Is(err, diagnosis.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported image format, use JPEG or PNG"
	case errors.Is(err, diagnosis.ErrEmptyImage):
		return http.StatusBadRequest, "image is empty"
	case errors.Is(err, diagnosis.ErrUndecodableImage):
		return http.StatusBadRequest, "image could not be decoded"
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusBadRequest, "email is already registered"
	case errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusUnauthorized, "incorrect password"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, diagnosis.ErrModelUnavailable):
		return http.StatusInternalServerError, "classifier model is not loaded"
	case errors.Is(err, diagnosis.ErrInferenceFailed):
		return http.StatusInternalServerError, "image analysis failed"
	case errors.Is(err, analysis.ErrStorage):
		return http.StatusInternalServerError, "analysis could not be stored"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
