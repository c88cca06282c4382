// Package notify provides ports.Notifier implementations.
package notify

import (
	"screencast/internal/core/domain"
	"screencast/internal/core/ports"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(note domain.Notification) {
	kv := []any{
		"kind", note.Kind,
		"title", note.Title,
		"message", note.Message,
	}
	if note.SessionID != "" {
		kv = append(kv, "session_id", note.SessionID)
	}
	if note.Error != "" {
		kv = append(kv, "error", note.Error)
	}

	if note.Severity == domain.SeverityDestructive {
		n.logger.Warnw("session notification", kv...)
		return
	}
	n.logger.Infow("session notification", kv...)
}

// Fanout delivers every notification to each notifier in order.
type Fanout []ports.Notifier

func (f Fanout) Notify(note domain.Notification) {
	for _, n := range f {
		if n != nil {
			n.Notify(note)
		}
	}
}
