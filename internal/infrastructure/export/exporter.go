// Package export saves finalized artifacts for the user.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"screencast/internal/core/domain"

	"go.uber.org/zap"
)

// Exporter implements ports.ArtifactExporter on top of a Storage.
type Exporter struct {
	storage Storage
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewExporter(storage Storage, logger *zap.SugaredLogger) *Exporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Exporter{storage: storage, logger: logger, now: time.Now}
}

// Export writes the artifact and returns the name it was saved under. The name
// is returned on failure too.
func (e *Exporter) Export(ctx context.Context, artifact *domain.Artifact) (string, error) {
	name := Filename(e.now(), artifact.MimeType)
	if err := e.storage.Save(ctx, name, bytes.NewReader(artifact.Bytes)); err != nil {
		return name, err
	}
	e.logger.Debugw("artifact exported", "filename", name, "size_bytes", len(artifact.Bytes))
	return name, nil
}

// Filename builds screen-recording-<UTC timestamp>.<ext>, with ':' replaced so
// the name is valid on every filesystem.
func Filename(at time.Time, mimeType string) string {
	stamp := strings.ReplaceAll(at.UTC().Format("2006-01-02T15:04:05"), ":", "-")
	return fmt.Sprintf("screen-recording-%s.%s", stamp, domain.Extension(mimeType))
}
