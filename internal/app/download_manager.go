package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/ldm-go/internal/checksum"
	"github.com/yourusername/ldm-go/internal/domain"
	"github.com/yourusername/ldm-go/internal/transfer"
	"github.com/yourusername/ldm-go/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrDownloadNotFound is returned when no download matches the requested ID
	ErrDownloadNotFound = domain.ErrNotFound

	// ErrDownloadActive is returned when an operation needs an idle download
	ErrDownloadActive = errors.New("download is active")

	// ErrInvalidRequest is returned for a malformed add request
	ErrInvalidRequest = errors.New("invalid download request")

	// ErrDuplicateDownload is returned when another unfinished download writes the same file
	ErrDuplicateDownload = errors.New("another download already targets this file")
)

// stopSettleTimeout bounds how long Start waits for a just-stopped attempt to clean up
const stopSettleTimeout = 2 * time.Second

var unfinishedStatuses = []domain.DownloadStatus{domain.StatusQueued, domain.StatusPaused, domain.StatusRunning}

// Notifier receives user-facing lifecycle notifications
type Notifier interface {
	NotifyDownloadStarted(download *domain.Download)
	NotifyDownloadCompleted(download *domain.Download)
	NotifyDownloadFailed(download *domain.Download, err error)
	NotifyChecksumFailed(download *domain.Download)
}

// AddRequest describes a new download
type AddRequest struct {
	URL          string `json:"url" binding:"required"`
	Dir          string `json:"dir"`
	FileName     string `json:"file_name"`
	Checksum     string `json:"checksum"`
	ChecksumAlgo string `json:"checksum_algo"`
	Priority     int    `json:"priority"`
	StartPaused  bool   `json:"start_paused"`
}

// DownloadView is a download record plus live transfer figures
type DownloadView struct {
	domain.Download
	Active     bool     `json:"active"`
	Percent    float64  `json:"percent"`
	Rate       float64  `json:"rate"`
	ETASeconds *float64 `json:"eta_seconds,omitempty"`
}

// job ties one engine to its record and meter. record is guarded by mu.
// ctl serialises control decisions (start, stop, remove) and is taken before dm.mu and mu.
type job struct {
	engine *transfer.Engine[string]
	meter  *transfer.Meter

	ctl sync.Mutex

	mu        sync.Mutex
	record    *domain.Download
	verifying bool
}

// DownloadManager owns one transfer engine per download and keeps the
// repository, notifier and event hub in step with engine transitions
type DownloadManager struct {
	repo      domain.DownloadRepository
	transport transfer.Transport
	notifier  Notifier
	hub       *EventHub
	config    *domain.DownloadConfig
	logs      *logger.Router
	logger    *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDownloadManager creates a new download manager
func NewDownloadManager(
	repo domain.DownloadRepository,
	transport transfer.Transport,
	notifier Notifier,
	hub *EventHub,
	config *domain.DownloadConfig,
	logs *logger.Router,
) *DownloadManager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if hub == nil {
		hub = NewEventHub()
	}
	if logs == nil {
		logs = logger.NewRouter(nil, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DownloadManager{
		repo:      repo,
		transport: transport,
		notifier:  notifier,
		hub:       hub,
		config:    config,
		logs:      logs,
		logger:    logs.Base(),
		jobs:      make(map[string]*job),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Hub returns the event hub downloads publish to
func (dm *DownloadManager) Hub() *EventHub {
	return dm.hub
}

// Add validates and stores a new download. It is queued unless StartPaused is set.
func (dm *DownloadManager) Add(req AddRequest) (*DownloadView, error) {
	rawURL := strings.TrimSpace(req.URL)
	if !domain.ValidateURL(rawURL) {
		return nil, fmt.Errorf("%w: url must be absolute http or https: %q", ErrInvalidRequest, req.URL)
	}

	var algo checksum.Algorithm
	if strings.TrimSpace(req.Checksum) != "" {
		parsed, err := checksum.ParseAlgorithm(req.ChecksumAlgo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		algo = parsed
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = dm.config.Dir
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = domain.FileNameFromURL(rawURL)
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: file name must not contain a path: %q", ErrInvalidRequest, name)
	}

	filePath := filepath.Join(dir, name)
	existing, err := dm.repo.FindByFilePath(filePath, unfinishedStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s (download %s)", ErrDuplicateDownload, filePath, existing.ID)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	download := domain.NewDownload(rawURL, filePath)
	download.Priority = req.Priority
	download.Checksum = strings.TrimSpace(req.Checksum)
	download.ChecksumAlgo = string(algo)
	if req.StartPaused {
		download.MarkPaused()
	}

	if err := dm.repo.Create(download); err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}

	j := dm.register(download)
	view := dm.view(j)

	dm.logger.Info("Download added",
		zap.String("id", download.ID),
		zap.String("url", download.URL),
		zap.String("file", download.FilePath),
		zap.String("status", string(download.Status)))
	dm.hub.Publish(EventAdded, download.ID, view)

	return view, nil
}

// Start begins or resumes a download. Restarting a finished download begins a fresh attempt.
func (dm *DownloadManager) Start(id string) (transfer.Outcome, error) {
	j, err := dm.jobFor(id)
	if err != nil {
		return transfer.OutcomeIgnored, err
	}

	j.ctl.Lock()
	defer j.ctl.Unlock()

	if !dm.tracked(id, j) {
		return transfer.OutcomeIgnored, ErrDownloadNotFound
	}

	j.mu.Lock()
	verifying := j.verifying
	j.mu.Unlock()
	if verifying {
		return transfer.OutcomeIgnored, fmt.Errorf("%w: checksum verification in progress", ErrDownloadActive)
	}

	if j.engine.State() == transfer.StateStopped {
		dm.settle(j.engine)
	}

	outcome, err := j.engine.Start()
	if errors.Is(err, transfer.ErrStopPending) {
		return outcome, fmt.Errorf("%w: previous attempt is still stopping", ErrDownloadActive)
	}
	if err != nil {
		j.mu.Lock()
		j.record.MarkError(err)
		dm.persist(j.record)
		j.mu.Unlock()
		return outcome, fmt.Errorf("failed to start download: %w", err)
	}

	if outcome == transfer.OutcomeStarted {
		j.meter.Reset()
		dm.logs.Transfer().Info("Transfer attempt started", zap.String("id", id))
	}
	return outcome, nil
}

// Pause pauses a running download
func (dm *DownloadManager) Pause(id string) (transfer.Outcome, error) {
	j, err := dm.jobFor(id)
	if err != nil {
		return transfer.OutcomeIgnored, err
	}
	return j.engine.Pause(), nil
}

// Stop abandons a running or paused download and deletes its partial file.
// A queued download is taken out of the queue.
func (dm *DownloadManager) Stop(id string) (transfer.Outcome, error) {
	j, err := dm.jobFor(id)
	if err != nil {
		return transfer.OutcomeIgnored, err
	}

	j.ctl.Lock()
	defer j.ctl.Unlock()

	if engineActive(j.engine) {
		return j.engine.Stop(), nil
	}

	// No loop: the record alone decides, whatever the engine's last attempt ended in
	j.mu.Lock()
	if j.record.IsTerminal() {
		j.mu.Unlock()
		return transfer.OutcomeIgnored, nil
	}
	j.record.MarkStopped()
	dm.persist(j.record)
	record := *j.record
	j.mu.Unlock()

	dm.logs.Transfer().Info("Download stopped", zap.String("id", id))
	dm.hub.Publish(EventStopped, id, recordView(&record))
	return transfer.OutcomeStopped, nil
}

// Toggle pauses a running download and starts or resumes anything else
func (dm *DownloadManager) Toggle(id string) (transfer.Outcome, error) {
	j, err := dm.jobFor(id)
	if err != nil {
		return transfer.OutcomeIgnored, err
	}

	if j.engine.State() == transfer.StateRunning {
		return j.engine.Pause(), nil
	}
	return dm.Start(id)
}

// Remove deletes an idle download record. deleteFile also removes a completed file.
func (dm *DownloadManager) Remove(id string, deleteFile bool) error {
	dm.mu.RLock()
	j, ok := dm.jobs[id]
	dm.mu.RUnlock()

	if ok {
		j.ctl.Lock()
		defer j.ctl.Unlock()

		j.mu.Lock()
		busy := j.verifying || engineActive(j.engine)
		j.mu.Unlock()
		if busy {
			return ErrDownloadActive
		}
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if ok && dm.jobs[id] != j {
		return ErrDownloadNotFound
	}

	record, err := dm.repo.FindByID(id)
	if err != nil {
		return err
	}
	if err := dm.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	delete(dm.jobs, id)

	if deleteFile && record.Status == domain.StatusComplete {
		if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
			dm.logger.Warn("Failed to delete downloaded file", zap.String("file", record.FilePath), zap.Error(err))
		}
	}

	dm.logger.Info("Download removed", zap.String("id", id), zap.Bool("file_deleted", deleteFile))
	dm.hub.Publish(EventRemoved, id, nil)
	return nil
}

// Get returns one download with live figures when it has an engine
func (dm *DownloadManager) Get(id string) (*DownloadView, error) {
	dm.mu.RLock()
	j, ok := dm.jobs[id]
	dm.mu.RUnlock()
	if ok {
		return dm.view(j), nil
	}

	record, err := dm.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	return recordView(record), nil
}

// List returns downloads matching filters, newest first
func (dm *DownloadManager) List(filters map[string]interface{}) ([]*DownloadView, error) {
	records, err := dm.repo.FindAll(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}

	dm.mu.RLock()
	defer dm.mu.RUnlock()

	views := make([]*DownloadView, 0, len(records))
	for _, record := range records {
		if j, ok := dm.jobs[record.ID]; ok {
			views = append(views, dm.view(j))
			continue
		}
		views = append(views, recordView(record))
	}
	return views, nil
}

// Stats returns download statistics
func (dm *DownloadManager) Stats() (*domain.DownloadStats, error) {
	return dm.repo.GetStats()
}

// IsActive reports whether a transfer loop currently owns the download
func (dm *DownloadManager) IsActive(id string) bool {
	dm.mu.RLock()
	j, ok := dm.jobs[id]
	dm.mu.RUnlock()
	return ok && engineActive(j.engine)
}

// ActiveCount returns the number of downloads with a live transfer loop
func (dm *DownloadManager) ActiveCount() int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	count := 0
	for _, j := range dm.jobs {
		if engineActive(j.engine) {
			count++
		}
	}
	return count
}

// StopAll stops every active download and waits for their loops to exit or ctx to expire.
// It returns the number of downloads that were stopped.
func (dm *DownloadManager) StopAll(ctx context.Context) int {
	engines, stopped := dm.stopEngines()
	dm.awaitEngines(ctx, engines)
	return stopped
}

// Shutdown stops all transfers, cancels in-flight requests and waits for loops and verifications
func (dm *DownloadManager) Shutdown(ctx context.Context) int {
	engines, stopped := dm.stopEngines()
	dm.cancel()
	dm.awaitEngines(ctx, engines)

	done := make(chan struct{})
	go func() {
		dm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	dm.logger.Info("Download manager shut down", zap.Int("stopped", stopped))
	return stopped
}

func (dm *DownloadManager) stopEngines() ([]*transfer.Engine[string], int) {
	dm.mu.RLock()
	var engines []*transfer.Engine[string]
	for _, j := range dm.jobs {
		if engineActive(j.engine) {
			engines = append(engines, j.engine)
		}
	}
	dm.mu.RUnlock()

	stopped := 0
	for _, e := range engines {
		if e.Stop().Accepted() {
			stopped++
		}
	}
	return engines, stopped
}

func (dm *DownloadManager) awaitEngines(ctx context.Context, engines []*transfer.Engine[string]) {
	for _, e := range engines {
		select {
		case <-e.Done():
		case <-ctx.Done():
			dm.logger.Warn("Timed out waiting for transfers to stop", zap.Error(ctx.Err()))
			return
		}
	}
}

// RecoverOrphaned resets records left running or paused by a previous process
func (dm *DownloadManager) RecoverOrphaned() (int64, error) {
	n, err := dm.repo.ResetOrphaned()
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned downloads: %w", err)
	}
	if n > 0 {
		dm.logger.Info("Reset orphaned downloads", zap.Int64("count", n))
	}
	return n, nil
}

// RequeueFailed puts errored downloads back in the queue while they have retries left
// and delay has passed since they failed
func (dm *DownloadManager) RequeueFailed(maxRetries int, delay time.Duration) (int, error) {
	if maxRetries <= 0 {
		return 0, nil
	}

	failed, err := dm.repo.FindByStatus(domain.StatusError)
	if err != nil {
		return 0, fmt.Errorf("failed to find failed downloads: %w", err)
	}

	requeued := 0
	for _, record := range failed {
		if !record.CanRetry(maxRetries) || time.Since(record.UpdatedAt) < delay || dm.IsActive(record.ID) {
			continue
		}

		j, err := dm.jobFor(record.ID)
		if err != nil {
			continue
		}
		j.mu.Lock()
		if j.record.CanRetry(maxRetries) {
			j.record.IncrementRetry()
			j.record.MarkQueued()
			dm.persist(j.record)
			requeued++
		}
		j.mu.Unlock()
	}
	return requeued, nil
}

// tracked reports whether j is still the live job for id
func (dm *DownloadManager) tracked(id string, j *job) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.jobs[id] == j
}

// settle waits briefly for a stopped attempt's loop to finish its cleanup
func (dm *DownloadManager) settle(e *transfer.Engine[string]) {
	timer := time.NewTimer(stopSettleTimeout)
	defer timer.Stop()

	select {
	case <-e.Done():
	case <-timer.C:
	case <-dm.ctx.Done():
	}
}

// register creates the engine for a record and tracks it
func (dm *DownloadManager) register(record *domain.Download) *job {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	j := dm.newJob(record)
	dm.jobs[record.ID] = j
	return j
}

// jobFor returns the tracked job, loading the record when the download has no engine yet
func (dm *DownloadManager) jobFor(id string) (*job, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if j, ok := dm.jobs[id]; ok {
		return j, nil
	}

	record, err := dm.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrDownloadNotFound
		}
		return nil, fmt.Errorf("failed to load download: %w", err)
	}

	j := dm.newJob(record)
	dm.jobs[id] = j
	return j, nil
}

func (dm *DownloadManager) newJob(record *domain.Download) *job {
	opts := transfer.Options{
		ChunkSize:      dm.config.ChunkSize,
		MaxReconnects:  dm.config.MaxReconnects,
		ReconnectDelay: dm.config.ReconnectDelay,
		Context:        dm.ctx,
		Logger:         dm.logs.Transfer().With(zap.String("id", record.ID)),
	}

	j := &job{
		engine: transfer.New(record.ID, record.URL, record.FilePath, dm.transport, opts),
		meter:  transfer.NewMeter(),
		record: record,
	}
	j.engine.SetObserver(&jobObserver{dm: dm, job: j})
	return j
}

// persist writes the record. Caller holds the job lock.
func (dm *DownloadManager) persist(record *domain.Download) {
	if err := dm.repo.Update(record); err != nil {
		dm.logs.LogError("Failed to update download",
			zap.String("id", record.ID),
			zap.String("status", string(record.Status)),
			zap.Error(err))
	}
}

func (dm *DownloadManager) view(j *job) *DownloadView {
	j.mu.Lock()
	view := recordView(j.record)
	j.mu.Unlock()

	view.Active = engineActive(j.engine)
	if view.Status == domain.StatusRunning || view.Status == domain.StatusPaused {
		snap := j.meter.Snapshot()
		view.Rate = snap.Rate
		if snap.ETAKnown {
			eta := snap.ETA.Seconds()
			view.ETASeconds = &eta
		}
	}
	return view
}

func recordView(record *domain.Download) *DownloadView {
	view := &DownloadView{Download: *record}
	view.Percent = transfer.Snapshot{Transferred: record.BytesTransferred, Total: record.ContentSize}.Percent()
	if record.Status == domain.StatusComplete {
		view.Percent = 100
	}
	return view
}

// engineActive reports whether a loop owns the engine's current attempt
func engineActive(e *transfer.Engine[string]) bool {
	select {
	case <-e.Done():
		return false
	default:
		return true
	}
}

type nopNotifier struct{}

func (nopNotifier) NotifyDownloadStarted(*domain.Download)       {}
func (nopNotifier) NotifyDownloadCompleted(*domain.Download)     {}
func (nopNotifier) NotifyDownloadFailed(*domain.Download, error) {}
func (nopNotifier) NotifyChecksumFailed(*domain.Download)        {}
