package domain

import "errors"

// ErrNotFound is returned when no download matches the requested ID
var ErrNotFound = errors.New("download not found")

// DownloadRepository defines the interface for download persistence
type DownloadRepository interface {
	// Create creates a new download
	Create(download *Download) error

	// Update updates an existing download
	Update(download *Download) error

	// Delete deletes a download by ID
	Delete(id string) error

	// FindByID finds a download by ID
	FindByID(id string) (*Download, error)

	// FindByFilePath finds the newest download writing to path in one of the given statuses
	FindByFilePath(path string, statuses []DownloadStatus) (*Download, error)

	// FindByStatus finds downloads by status
	FindByStatus(status DownloadStatus) ([]*Download, error)

	// FindPending finds all queued downloads ordered by priority and creation time
	FindPending() ([]*Download, error)

	// FindAll finds all downloads with optional filters
	FindAll(filters map[string]interface{}) ([]*Download, error)

	// Count returns the total number of downloads
	Count() (int64, error)

	// CountByStatus returns the number of downloads by status
	CountByStatus(status DownloadStatus) (int64, error)

	// ResetOrphaned moves records left running or paused by a previous process to stopped
	ResetOrphaned() (int64, error)

	// GetStats returns download statistics
	GetStats() (*DownloadStats, error)
}

// DownloadStats represents download statistics
type DownloadStats struct {
	Total    int64 `json:"total"`
	Queued   int64 `json:"queued"`
	Paused   int64 `json:"paused"`
	Running  int64 `json:"running"`
	Complete int64 `json:"complete"`
	Stopped  int64 `json:"stopped"`
	Error    int64 `json:"error"`
}
