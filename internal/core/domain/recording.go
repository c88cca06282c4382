package domain

import "time"

type RecordingID string

// Recording is a persisted descriptor of a finished screen recording.
type Recording struct {
	ID            RecordingID `json:"id"`
	Title         string      `json:"title"`
	Filename      string      `json:"filename"`
	FileSize      int64       `json:"fileSize"` // bytes
	Duration      int         `json:"duration"` // seconds
	Format        string      `json:"format"`
	Quality       string      `json:"quality"`
	FrameRate     int         `json:"frameRate"`
	HasAudio      bool        `json:"hasAudio"`
	HasMicrophone bool        `json:"hasMicrophone"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// RecordingInput is the client-supplied part of a Recording.
type RecordingInput struct {
	Title         string `json:"title"`
	Filename      string `json:"filename"`
	FileSize      int64  `json:"fileSize"`
	Duration      int    `json:"duration"`
	Format        string `json:"format"`
	Quality       string `json:"quality"`
	FrameRate     int    `json:"frameRate"`
	HasAudio      bool   `json:"hasAudio"`
	HasMicrophone bool   `json:"hasMicrophone"`
}

// RecordingEventType names store-level changes broadcast to other instances.
type RecordingEventType string

const (
	EventRecordingCreated RecordingEventType = "recording.created"
	EventRecordingDeleted RecordingEventType = "recording.deleted"
)
