package http

import (
	"errors"
	"net/http"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
	apperrors "screencast/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RecordingHandler serves the recording store REST API.
type RecordingHandler struct {
	recordings ports.RecordingService
}

func NewRecordingHandler(recordings ports.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordings: recordings}
}

// SetupRoutes registers the store routes. Mutating routes go through guard,
// which may be nil.
func (h *RecordingHandler) SetupRoutes(router gin.IRouter, guard gin.HandlerFunc) {
	api := router.Group("/api/recordings")
	{
		api.GET("", h.ListRecordings)
		api.GET("/:id", h.GetRecording)

		mutating := api.Group("")
		if guard != nil {
			mutating.Use(guard)
		}
		mutating.POST("", h.CreateRecording)
		mutating.DELETE("/:id", h.DeleteRecording)
	}
}

func (h *RecordingHandler) ListRecordings(c *gin.Context) {
	recordings, err := h.recordings.ListRecordings(c.Request.Context())
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "Failed to fetch recordings", http.StatusInternalServerError))
		return
	}
	if recordings == nil {
		recordings = []*domain.Recording{}
	}
	c.JSON(http.StatusOK, recordings)
}

func (h *RecordingHandler) GetRecording(c *gin.Context) {
	recording, err := h.recordings.GetRecording(c.Request.Context(), domain.RecordingID(c.Param("id")))
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			c.Error(apperrors.NewNotFoundError("Recording"))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "Failed to fetch recording", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, recording)
}

func (h *RecordingHandler) CreateRecording(c *gin.Context) {
	var input domain.RecordingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(apperrors.NewInvalidInputError("Invalid recording data").
			WithDetails([]domain.FieldError{{Field: "body", Message: err.Error()}}))
		return
	}

	recording, err := h.recordings.CreateRecording(c.Request.Context(), input)
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			c.Error(apperrors.NewInvalidInputError("Invalid recording data").WithDetails(validationErr.Fields))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "Failed to create recording", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusCreated, recording)
}

func (h *RecordingHandler) DeleteRecording(c *gin.Context) {
	err := h.recordings.DeleteRecording(c.Request.Context(), domain.RecordingID(c.Param("id")))
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			c.Error(apperrors.NewNotFoundError("Recording"))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "Failed to delete recording", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recording deleted successfully"})
}

var _ ports.RecordingHTTPHandler = (*RecordingHandler)(nil)
