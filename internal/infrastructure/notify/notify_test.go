package notify

import (
	"testing"

	"screencast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type collector struct {
	got []domain.Notification
}

func (c *collector) Notify(n domain.Notification) {
	c.got = append(c.got, n)
}

func TestLogNotifier_LevelFollowsSeverity(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core).Sugar())

	n.Notify(domain.Notification{Kind: domain.NotifyRecordingSaved, Severity: domain.SeverityInfo, Title: "Recording saved"})
	n.Notify(domain.Notification{Kind: domain.NotifyPublishFailed, Severity: domain.SeverityDestructive, Error: "boom"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	_, hasErr := entries[0].ContextMap()["error"]
	assert.False(t, hasErr)
}

func TestFanout(t *testing.T) {
	a, b := &collector{}, &collector{}
	f := Fanout{a, nil, b}

	f.Notify(domain.Notification{Kind: domain.NotifyShareStarted})

	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}
