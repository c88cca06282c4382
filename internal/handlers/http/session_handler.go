package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"screencast/internal/core/domain"
	"screencast/internal/core/ports"
	apperrors "screencast/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SessionController is the recording session as seen by the HTTP layer.
type SessionController interface {
	Status() domain.SessionStatus
	StartShare(ctx context.Context, constraints domain.CaptureConstraints) (domain.StreamSettings, error)
	StartRecord(ctx context.Context) error
	StopRecord(ctx context.Context) (*domain.Artifact, error)
	StopAll(ctx context.Context) *domain.Artifact
}

// ArtifactView describes a finalized artifact without its bytes.
type ArtifactView struct {
	MimeType        string    `json:"mime_type"`
	Extension       string    `json:"extension"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

func newArtifactView(a *domain.Artifact) *ArtifactView {
	if a == nil {
		return nil
	}
	return &ArtifactView{
		MimeType:        a.MimeType,
		Extension:       a.Extension(),
		SizeBytes:       a.SizeBytes,
		DurationSeconds: a.DurationSeconds,
		CreatedAt:       a.CreatedAt,
	}
}

// SessionHandler exposes session control over HTTP.
type SessionHandler struct {
	session     SessionController
	constraints domain.CaptureConstraints
	events      http.Handler
}

// NewSessionHandler builds the handler. constraints are used when a share
// request carries none; events serves the notification feed and may be nil.
func NewSessionHandler(session SessionController, constraints domain.CaptureConstraints, events http.Handler) *SessionHandler {
	return &SessionHandler{
		session:     session,
		constraints: constraints,
		events:      events,
	}
}

// SetupRoutes registers the session routes. guard protects every route and
// eventsGuard additionally protects the feed; either may be nil.
func (h *SessionHandler) SetupRoutes(router gin.IRouter, guard, eventsGuard gin.HandlerFunc) {
	api := router.Group("/api/session")
	if guard != nil {
		api.Use(guard)
	}
	{
		api.GET("", h.GetStatus)
		api.POST("/share", h.StartShare)
		api.POST("/record", h.StartRecord)
		api.POST("/record/stop", h.StopRecord)
		api.POST("/stop", h.StopAll)

		if h.events != nil {
			handlers := []gin.HandlerFunc{}
			if eventsGuard != nil {
				handlers = append(handlers, eventsGuard)
			}
			handlers = append(handlers, gin.WrapH(h.events))
			api.GET("/events", handlers...)
		}
	}
}

func (h *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}

func (h *SessionHandler) StartShare(c *gin.Context) {
	constraints := h.constraints
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&constraints); err != nil {
			c.Error(apperrors.NewInvalidInputError("invalid capture constraints"))
			return
		}
	}

	settings, err := h.session.StartShare(c.Request.Context(), constraints)
	if err != nil {
		c.Error(sessionError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"settings": settings,
		"status":   h.session.Status(),
	})
}

func (h *SessionHandler) StartRecord(c *gin.Context) {
	if err := h.session.StartRecord(c.Request.Context()); err != nil {
		c.Error(sessionError(err))
		return
	}
	c.JSON(http.StatusOK, h.session.Status())
}

// StopRecord answers 200 whenever an artifact was produced, listing export
// and publish failures alongside it.
func (h *SessionHandler) StopRecord(c *gin.Context) {
	artifact, err := h.session.StopRecord(c.Request.Context())
	if artifact == nil {
		c.Error(sessionError(err))
		return
	}

	body := gin.H{"artifact": newArtifactView(artifact)}
	if err != nil {
		body["errors"] = deliveryErrors(err)
	}
	c.JSON(http.StatusOK, body)
}

func (h *SessionHandler) StopAll(c *gin.Context) {
	artifact := h.session.StopAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"artifact": newArtifactView(artifact),
		"status":   h.session.Status(),
	})
}

func deliveryErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func sessionError(err error) *apperrors.AppError {
	var acquisitionErr *domain.AcquisitionError
	switch {
	case err == nil:
		return apperrors.NewInternalError("session operation failed")
	case errors.Is(err, domain.ErrAlreadySharing),
		errors.Is(err, domain.ErrAlreadyRecording),
		errors.Is(err, domain.ErrNotSharing),
		errors.Is(err, domain.ErrNotRecording):
		return apperrors.NewConflictError(err.Error())
	case errors.Is(err, domain.ErrNoDataCaptured),
		errors.Is(err, domain.ErrNoSupportedProfile):
		return apperrors.NewUnprocessableError(err.Error())
	case errors.As(err, &acquisitionErr):
		return apperrors.NewBadGatewayError(err.Error(), err)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, err.Error(), http.StatusInternalServerError)
	}
}

var _ ports.SessionHTTPHandler = (*SessionHandler)(nil)
