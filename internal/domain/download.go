package domain

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the current status of a download
type DownloadStatus string

const (
	StatusQueued   DownloadStatus = "queued"
	StatusPaused   DownloadStatus = "paused"
	StatusRunning  DownloadStatus = "running"
	StatusComplete DownloadStatus = "complete"
	StatusStopped  DownloadStatus = "stopped"
	StatusError    DownloadStatus = "error"
)

// VerifyStatus tracks the post-completion checksum check
type VerifyStatus string

const (
	VerifyNone     VerifyStatus = ""
	VerifyRunning  VerifyStatus = "verifying"
	VerifyPassed   VerifyStatus = "verified"
	VerifyMismatch VerifyStatus = "checksum_failed"
	VerifyErrored  VerifyStatus = "verify_error"
)

// DefaultFileName is used when no file name can be derived from the URL
const DefaultFileName = "download"

// Download represents a download task
type Download struct {
	ID               string         `json:"id" gorm:"primaryKey"`
	URL              string         `json:"url" gorm:"not null"`
	FilePath         string         `json:"file_path" gorm:"not null"`
	Status           DownloadStatus `json:"status" gorm:"not null;index"`
	Priority         int            `json:"priority" gorm:"default:0;index"`
	RetryCount       int            `json:"retry_count" gorm:"default:0"`
	BytesTransferred int64          `json:"bytes_transferred" gorm:"default:0"`
	ContentSize      int64          `json:"content_size" gorm:"default:-1"`
	Resumed          bool           `json:"resumed"`
	Checksum         string         `json:"checksum,omitempty"`
	ChecksumAlgo     string         `json:"checksum_algo,omitempty"`
	VerifyStatus     VerifyStatus   `json:"verify_status,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// NewDownload creates a new queued download task
func NewDownload(rawURL, filePath string) *Download {
	now := time.Now()
	return &Download{
		ID:          uuid.New().String(),
		URL:         rawURL,
		FilePath:    filePath,
		Status:      StatusQueued,
		ContentSize: -1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkQueued puts the download back in the queue
func (d *Download) MarkQueued() {
	d.Status = StatusQueued
	d.ErrorMessage = ""
	d.UpdatedAt = time.Now()
}

// MarkRunning marks the download as running
func (d *Download) MarkRunning(resumed bool) {
	now := time.Now()
	if !resumed {
		d.StartedAt = &now
		d.CompletedAt = nil
		d.ErrorMessage = ""
		d.VerifyStatus = VerifyNone
	}
	d.Status = StatusRunning
	d.Resumed = resumed
	d.UpdatedAt = now
}

// MarkPaused marks the download as paused
func (d *Download) MarkPaused() {
	d.Status = StatusPaused
	d.UpdatedAt = time.Now()
}

// MarkComplete marks the download as complete
func (d *Download) MarkComplete(size int64) {
	now := time.Now()
	d.Status = StatusComplete
	d.BytesTransferred = size
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// MarkStopped marks the download as stopped. The partial file is gone, so progress resets.
func (d *Download) MarkStopped() {
	d.Status = StatusStopped
	d.BytesTransferred = 0
	d.Resumed = false
	d.UpdatedAt = time.Now()
}

// MarkError marks the download as failed
func (d *Download) MarkError(err error) {
	d.Status = StatusError
	d.ErrorMessage = err.Error()
	d.BytesTransferred = 0
	d.UpdatedAt = time.Now()
}

// UpdateProgress records the byte counters of the current attempt
func (d *Download) UpdateProgress(transferred, total int64) {
	d.BytesTransferred = transferred
	d.ContentSize = total
	d.UpdatedAt = time.Now()
}

// SetVerifyStatus records the outcome of checksum verification
func (d *Download) SetVerifyStatus(status VerifyStatus, err error) {
	d.VerifyStatus = status
	if err != nil {
		d.ErrorMessage = err.Error()
	}
	d.UpdatedAt = time.Now()
}

// IncrementRetry increments the retry count
func (d *Download) IncrementRetry() {
	d.RetryCount++
	d.UpdatedAt = time.Now()
}

// CanRetry checks if the download can be retried
func (d *Download) CanRetry(maxRetries int) bool {
	return d.RetryCount < maxRetries && d.Status == StatusError
}

// HasChecksum reports whether an expected digest was supplied
func (d *Download) HasChecksum() bool {
	return strings.TrimSpace(d.Checksum) != ""
}

// IsTerminal checks if the download is in a terminal state
func (d *Download) IsTerminal() bool {
	return d.Status == StatusComplete || d.Status == StatusStopped || d.Status == StatusError
}

// IsPending checks if the download is waiting in the queue
func (d *Download) IsPending() bool {
	return d.Status == StatusQueued
}

// IsActive checks if a transfer loop may own the download
func (d *Download) IsActive() bool {
	return d.Status == StatusRunning || d.Status == StatusPaused
}

// FileNameFromURL derives a file name from the last path segment of a URL
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return DefaultFileName
	}

	name := path.Base(u.EscapedPath())
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `/\`) {
		return DefaultFileName
	}
	return name
}

// ValidateURL checks that a download URL is an absolute http(s) URL
func ValidateURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
