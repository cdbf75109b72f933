package infrastructure

import (
	"fmt"
	"os/exec"

	"github.com/dustin/go-humanize"
	"github.com/yourusername/ldm-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications about download lifecycle events
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var (
		binary string
		args   []string
	)
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf("display notification %s with title %s",
			appleScriptString(message), appleScriptString(title))
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		binary, args = "osascript", []string{"-e", script}
	case "notify-send":
		binary, args = "notify-send", []string{title, message}
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err := n.run(binary, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.String("command", commandLine(binary, args...)),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyDownloadStarted sends notification when a transfer starts
func (n *NotificationService) NotifyDownloadStarted(download *domain.Download) {
	n.Send("Download Started", truncateString(download.URL, 60))
}

// NotifyDownloadCompleted sends notification when a transfer completes
func (n *NotificationService) NotifyDownloadCompleted(download *domain.Download) {
	message := fmt.Sprintf("%s (%s)", truncateString(download.FilePath, 60), humanize.Bytes(uint64(download.BytesTransferred)))
	n.Send("Download Completed", message)
}

// NotifyDownloadFailed sends notification when a transfer fails
func (n *NotificationService) NotifyDownloadFailed(download *domain.Download, err error) {
	n.Send("Download Failed", fmt.Sprintf("%s: %v", truncateString(download.URL, 60), err))
}

// NotifyChecksumFailed sends notification when a finished file does not match its checksum
func (n *NotificationService) NotifyChecksumFailed(download *domain.Download) {
	n.Send("Checksum Mismatch", truncateString(download.FilePath, 60))
}

// NotifyQueueEmpty sends notification when the queue drains
func (n *NotificationService) NotifyQueueEmpty() {
	n.Send("Queue Empty", "All downloads finished")
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
