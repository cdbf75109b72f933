package infrastructure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ldm-go/internal/domain"
	"go.uber.org/zap"
)

type recordedCommand struct {
	name string
	args []string
}

func newTestNotifier(config domain.NotificationConfig, fail error) (*NotificationService, *[]recordedCommand) {
	var calls []recordedCommand
	n := NewNotificationService(&config, zap.NewNop())
	n.run = func(name string, args ...string) error {
		calls = append(calls, recordedCommand{name: name, args: args})
		return fail
	}
	return n, &calls
}

func TestNotification_Disabled(t *testing.T) {
	n, calls := newTestNotifier(domain.NotificationConfig{Enabled: false, Method: "notify-send"}, nil)

	require.NoError(t, n.Send("title", "message"))
	assert.Empty(t, *calls)
}

func TestNotification_NotifySend(t *testing.T) {
	n, calls := newTestNotifier(domain.NotificationConfig{Enabled: true, Method: "notify-send"}, nil)

	dl := domain.NewDownload("https://example.com/a.iso", "/tmp/a.iso")
	dl.MarkComplete(2_000_000)
	n.NotifyDownloadCompleted(dl)

	require.Len(t, *calls, 1)
	assert.Equal(t, "notify-send", (*calls)[0].name)
	assert.Equal(t, []string{"Download Completed", "/tmp/a.iso (2.0 MB)"}, (*calls)[0].args)
}

func TestNotification_OSAScriptEscapes(t *testing.T) {
	n, calls := newTestNotifier(domain.NotificationConfig{Enabled: true, Method: "osascript", Sound: true}, nil)

	require.NoError(t, n.Send(`say "hi"`, "body"))

	require.Len(t, *calls, 1)
	assert.Equal(t, "osascript", (*calls)[0].name)
	assert.Equal(t, []string{"-e", `display notification "body" with title "say \"hi\"" sound name "Glass"`}, (*calls)[0].args)
}

func TestNotification_UnknownMethodIsIgnored(t *testing.T) {
	n, calls := newTestNotifier(domain.NotificationConfig{Enabled: true, Method: "carrier-pigeon"}, nil)

	assert.NoError(t, n.Send("title", "message"))
	assert.Empty(t, *calls)
}

func TestNotification_CommandFailure(t *testing.T) {
	n, _ := newTestNotifier(domain.NotificationConfig{Enabled: true, Method: "notify-send"}, errors.New("not installed"))

	assert.Error(t, n.Send("title", "message"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abc...", truncateString("abcdef", 3))
}
