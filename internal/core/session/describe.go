package session

import (
	"fmt"

	"screencast/internal/core/domain"
)

const (
	defaultQuality   = "720p"
	defaultFrameRate = 30
	titleTimeLayout  = "1/2/2006, 3:04:05 PM"
)

// DescribeArtifact builds the metadata record published for an artifact.
func DescribeArtifact(artifact *domain.Artifact) domain.RecordingInput {
	ext := artifact.Extension()

	quality := defaultQuality
	if artifact.Settings.Height > 0 {
		quality = fmt.Sprintf("%dp", artifact.Settings.Height)
	}
	frameRate := defaultFrameRate
	if artifact.Settings.FrameRate > 0 {
		frameRate = artifact.Settings.FrameRate
	}

	return domain.RecordingInput{
		Title:         "Screen Recording " + artifact.CreatedAt.Local().Format(titleTimeLayout),
		Filename:      fmt.Sprintf("screen-recording-%d.%s", artifact.CreatedAt.UnixMilli(), ext),
		FileSize:      artifact.SizeBytes,
		Duration:      artifact.DurationSeconds,
		Format:        ext,
		Quality:       quality,
		FrameRate:     frameRate,
		HasAudio:      artifact.Settings.HasAudio,
		HasMicrophone: artifact.Settings.HasMicrophone,
	}
}
