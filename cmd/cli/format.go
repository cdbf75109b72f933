package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yourusername/ldm-go/internal/app"
)

func formatSize(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.Bytes(uint64(n))
}

func formatProgress(d *app.DownloadView) string {
	if d.Percent < 0 {
		return formatSize(d.BytesTransferred)
	}
	return fmt.Sprintf("%.1f%%", d.Percent)
}

func formatRate(rate float64) string {
	if rate <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(rate)) + "/s"
}

func formatETA(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds * float64(time.Second))).Round(time.Second).String()
}

func formatStatus(d *app.DownloadView) string {
	if d.VerifyStatus != "" {
		return fmt.Sprintf("%s (%s)", d.Status, d.VerifyStatus)
	}
	return string(d.Status)
}

func fileName(d *app.DownloadView) string {
	return filepath.Base(d.FilePath)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
