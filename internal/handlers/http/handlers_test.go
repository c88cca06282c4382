package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"screencast/internal/core/domain"
	"screencast/internal/core/services"
	"screencast/internal/core/session"
	"screencast/internal/infrastructure/capture/fake"
	"screencast/internal/infrastructure/middleware"
	"screencast/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	router     *gin.Engine
	recordings *services.CachedRecordingService
	session    *session.Session
	source     *fake.Source
	platform   *fake.Platform
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	base := services.NewRecordingService(memory.NewMemoryRecordingRepository(), nil, nil, logger)
	recordings := services.NewCachedRecordingService(base, 0)
	t.Cleanup(recordings.Stop)

	source := fake.NewSource(domain.StreamSettings{Width: 1280, Height: 720, FrameRate: 24, HasAudio: true})
	platform := fake.NewPlatform("video/webm")
	sess := session.New(session.DefaultConfig(), session.Dependencies{
		Source:    source,
		Platform:  platform,
		Publisher: services.NewLocalPublisher(recordings),
		Logger:    logger,
	})
	t.Cleanup(func() { sess.StopAll(context.Background()) })

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	NewRecordingHandler(recordings).SetupRoutes(router, nil)
	NewSessionHandler(sess, domain.DefaultCaptureConstraints(), nil).SetupRoutes(router, nil, nil)

	return &testServer{
		router:     router,
		recordings: recordings,
		session:    sess,
		source:     source,
		platform:   platform,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func validRecording() domain.RecordingInput {
	return domain.RecordingInput{
		Title:     "Screen Recording",
		Filename:  "screen-recording-1.webm",
		FileSize:  1024,
		Duration:  5,
		Format:    "webm",
		Quality:   "720p",
		FrameRate: 24,
	}
}

func TestRecordingHandler_CRUD(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/recordings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w, created := s.do(t, http.MethodPost, "/api/recordings", validRecording())
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "screen-recording-1.webm", created["filename"])
	assert.NotEmpty(t, created["createdAt"])

	w, got := s.do(t, http.MethodGet, "/api/recordings/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, got["id"])

	w, _ = s.do(t, http.MethodGet, "/api/recordings", nil)
	var list []domain.Recording
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w, deleted := s.do(t, http.MethodDelete, "/api/recordings/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Recording deleted successfully", deleted["message"])

	w, missing := s.do(t, http.MethodGet, "/api/recordings/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Recording not found", missing["message"])

	w, _ = s.do(t, http.MethodDelete, "/api/recordings/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordingHandler_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	input := validRecording()
	input.Title = ""
	input.Duration = -3

	w, body := s.do(t, http.MethodPost, "/api/recordings", input)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid recording data", body["message"])
	fieldErrs, ok := body["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, fieldErrs, 2)
}

func TestRecordingHandler_CreateMalformedJSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/recordings", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid recording data")
}

func TestSessionHandler_RecordFlowPublishes(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/session/share", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := body["status"].(map[string]any)
	assert.Equal(t, "sharing", status["state"])

	w, _ = s.do(t, http.MethodPost, "/api/session/record", nil)
	require.Equal(t, http.StatusOK, w.Code)

	s.platform.Last().Emit(bytes.Repeat([]byte{1}, 2048))

	w, body = s.do(t, http.MethodPost, "/api/session/record/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	artifact := body["artifact"].(map[string]any)
	assert.Equal(t, "webm", artifact["extension"])
	assert.EqualValues(t, 2048, artifact["size_bytes"])
	assert.Nil(t, body["errors"])

	list, err := s.recordings.ListRecordings(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "720p", list[0].Quality)
	assert.Equal(t, int64(2048), list[0].FileSize)
}

func TestSessionHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/session/record", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.ErrNotSharing.Error(), body["message"])

	w, _ = s.do(t, http.MethodPost, "/api/session/record/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/session/share", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/session/share", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/session/record", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/session/record/stop", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/session/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["artifact"])
	assert.Equal(t, "idle", body["status"].(map[string]any)["state"])
}

func TestSessionHandler_AcquisitionFailure(t *testing.T) {
	s := newTestServer(t)
	s.source.Err = fake.ErrPermissionDenied

	w, body := s.do(t, http.MethodPost, "/api/session/share", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["message"], "failed to start screen sharing")

	w, body = s.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", body["state"])
}

func TestSessionHandler_CustomConstraints(t *testing.T) {
	s := newTestServer(t)

	constraints := domain.DefaultCaptureConstraints()
	constraints.Microphone = true
	w, body := s.do(t, http.MethodPost, "/api/session/share", constraints)
	require.Equal(t, http.StatusOK, w.Code)

	settings := body["settings"].(map[string]any)
	assert.Equal(t, true, settings["has_microphone"])
}

func TestDeliveryErrors(t *testing.T) {
	joined := errors.Join(errors.New("export failed"), errors.New("publish failed"))
	assert.Equal(t, []string{"export failed", "publish failed"}, deliveryErrors(joined))
	assert.Equal(t, []string{"single"}, deliveryErrors(errors.New("single")))
}
