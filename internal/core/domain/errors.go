package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotSharing         = errors.New("no screen share active")
	ErrAlreadySharing     = errors.New("screen share already active")
	ErrAlreadyRecording   = errors.New("recording already in progress")
	ErrNotRecording       = errors.New("no recording in progress")
	ErrNoDataCaptured     = errors.New("no recording data was captured")
	ErrNoSupportedProfile = errors.New("no supported encoding profile")
	ErrRecordingNotFound  = errors.New("recording not found")
)

// AcquisitionError reports that the platform denied or could not provide a
// capture source.
type AcquisitionError struct {
	Cause error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to start screen sharing: %v", e.Cause)
}

func (e *AcquisitionError) Unwrap() error { return e.Cause }

// PublishError reports that the metadata store rejected or could not store an
// artifact descriptor.
type PublishError struct {
	Filename string
	Cause    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to save recording %s: %v", e.Filename, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// ExportError reports that the local-save path failed.
type ExportError struct {
	Filename string
	Cause    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export recording %s: %v", e.Filename, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }

// FieldError is a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects schema violations of a RecordingInput.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid recording data"
	}
	return fmt.Sprintf("invalid recording data: %s %s", e.Fields[0].Field, e.Fields[0].Message)
}
