package services

import (
	"context"
	"testing"
	"time"

	"screencast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRecordingService struct {
	mock.Mock
}

func (m *mockRecordingService) ListRecordings(ctx context.Context) ([]*domain.Recording, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*domain.Recording), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRecordingService) GetRecording(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Recording), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRecordingService) CreateRecording(ctx context.Context, input domain.RecordingInput) (*domain.Recording, error) {
	args := m.Called(ctx, input)
	if v := args.Get(0); v != nil {
		return v.(*domain.Recording), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRecordingService) DeleteRecording(ctx context.Context, id domain.RecordingID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestCachedRecordingService_GetIsCached(t *testing.T) {
	base := &mockRecordingService{}
	svc := NewCachedRecordingService(base, time.Minute)
	defer svc.Stop()

	rec := &domain.Recording{ID: "r1", Title: "one"}
	base.On("GetRecording", mock.Anything, domain.RecordingID("r1")).Return(rec, nil).Once()

	for i := 0; i < 3; i++ {
		got, err := svc.GetRecording(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	}
	base.AssertExpectations(t)
}

func TestCachedRecordingService_NotFoundIsNotCached(t *testing.T) {
	base := &mockRecordingService{}
	svc := NewCachedRecordingService(base, time.Minute)
	defer svc.Stop()

	base.On("GetRecording", mock.Anything, domain.RecordingID("r1")).Return(nil, domain.ErrRecordingNotFound).Twice()

	for i := 0; i < 2; i++ {
		_, err := svc.GetRecording(context.Background(), "r1")
		assert.ErrorIs(t, err, domain.ErrRecordingNotFound)
	}
	base.AssertExpectations(t)
}

func TestCachedRecordingService_CreateInvalidatesList(t *testing.T) {
	base := &mockRecordingService{}
	svc := NewCachedRecordingService(base, time.Minute)
	defer svc.Stop()

	first := []*domain.Recording{{ID: "r1"}}
	second := []*domain.Recording{{ID: "r2"}, {ID: "r1"}}
	base.On("ListRecordings", mock.Anything).Return(first, nil).Once()
	base.On("CreateRecording", mock.Anything, mock.Anything).Return(&domain.Recording{ID: "r2"}, nil).Once()
	base.On("ListRecordings", mock.Anything).Return(second, nil).Once()

	got, err := svc.ListRecordings(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.CreateRecording(context.Background(), domain.RecordingInput{Title: "two"})
	require.NoError(t, err)

	got, err = svc.ListRecordings(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	base.AssertExpectations(t)
}

func TestCachedRecordingService_DeleteInvalidates(t *testing.T) {
	base := &mockRecordingService{}
	svc := NewCachedRecordingService(base, time.Minute)
	defer svc.Stop()

	rec := &domain.Recording{ID: "r1"}
	base.On("GetRecording", mock.Anything, domain.RecordingID("r1")).Return(rec, nil).Once()
	base.On("DeleteRecording", mock.Anything, domain.RecordingID("r1")).Return(nil).Once()
	base.On("GetRecording", mock.Anything, domain.RecordingID("r1")).Return(nil, domain.ErrRecordingNotFound).Once()

	_, err := svc.GetRecording(context.Background(), "r1")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRecording(context.Background(), "r1"))

	_, err = svc.GetRecording(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrRecordingNotFound)
	base.AssertExpectations(t)
}

func TestLocalPublisher_DelegatesToStore(t *testing.T) {
	base := &mockRecordingService{}
	input := domain.RecordingInput{Title: "x"}
	base.On("CreateRecording", mock.Anything, input).Return(&domain.Recording{ID: "r9"}, nil).Once()

	rec, err := NewLocalPublisher(base).Publish(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingID("r9"), rec.ID)
	base.AssertExpectations(t)
}
