package domain

import "time"

type NotificationKind string

const (
	NotifyShareStarted     NotificationKind = "share_started"
	NotifyShareFailed      NotificationKind = "share_failed"
	NotifyShareEnded       NotificationKind = "share_ended"
	NotifyRecordingStarted NotificationKind = "recording_started"
	NotifyRecordingFailed  NotificationKind = "recording_failed"
	NotifyRecordingStopped NotificationKind = "recording_stopped"
	NotifyRecordingSaved   NotificationKind = "recording_saved"
	NotifyRecorderError    NotificationKind = "recorder_error"
	NotifyNoData           NotificationKind = "no_data"
	NotifyPublishFailed    NotificationKind = "publish_failed"
	NotifyExportFailed     NotificationKind = "export_failed"
	NotifyStallRecovery    NotificationKind = "stall_recovery_triggered"
	NotifySessionEnded     NotificationKind = "session_ended"
	NotifyMisuse           NotificationKind = "misuse"
)

type Severity string

const (
	SeverityInfo        Severity = "info"
	SeverityDestructive Severity = "destructive"
)

// Notification is a structured, user-readable message about the session.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Severity  Severity         `json:"severity"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Error     string           `json:"error,omitempty"`
	SessionID SessionID        `json:"session_id,omitempty"`
	At        time.Time        `json:"at"`
}
