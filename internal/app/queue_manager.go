package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ldm-go/internal/domain"
	"github.com/yourusername/ldm-go/internal/transfer"
	"github.com/yourusername/ldm-go/pkg/logger"
)

// QueueNotifier is told when the queue drains
type QueueNotifier interface {
	NotifyQueueEmpty()
}

// QueueStatus reports the queue processor state
type QueueStatus struct {
	Running         bool `json:"running"`
	Active          int  `json:"active"`
	ConcurrentLimit int  `json:"concurrent_limit"`
}

// QueueManager admits queued downloads into the download manager up to the concurrency limit
type QueueManager struct {
	repo        domain.DownloadRepository
	downloadMgr *DownloadManager
	config      *domain.QueueConfig
	download    *domain.DownloadConfig
	notifier    QueueNotifier
	logs        *logger.Router
	mu          sync.RWMutex
	running     bool
	busy        bool
	stopChan    chan struct{}
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.DownloadRepository,
	downloadMgr *DownloadManager,
	config *domain.QueueConfig,
	download *domain.DownloadConfig,
	notifier QueueNotifier,
	logs *logger.Router,
) *QueueManager {
	if logs == nil {
		logs = logger.NewRouter(nil, nil)
	}
	return &QueueManager{
		repo:        repo,
		downloadMgr: downloadMgr,
		config:      config,
		download:    download,
		notifier:    notifier,
		logs:        logs,
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.stopChan = make(chan struct{})
	stopChan := qm.stopChan
	qm.mu.Unlock()

	qm.logs.Queue().Info("Queue started",
		zap.Duration("check_interval", qm.config.CheckInterval),
		zap.Int("concurrent_limit", qm.download.ConcurrentLimit))

	qm.workerWg.Add(1)
	go qm.processQueue(ctx, stopChan)

	return nil
}

// Stop stops the queue processor. Running downloads are left alone.
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	close(qm.stopChan)
	qm.mu.Unlock()

	qm.workerWg.Wait()
	qm.logs.Queue().Info("Queue stopped")
	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// Status returns the queue processor state
func (qm *QueueManager) Status() QueueStatus {
	return QueueStatus{
		Running:         qm.IsRunning(),
		Active:          qm.downloadMgr.ActiveCount(),
		ConcurrentLimit: qm.download.ConcurrentLimit,
	}
}

func (qm *QueueManager) processQueue(ctx context.Context, stopChan <-chan struct{}) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	qm.processOnce()
	for {
		select {
		case <-ctx.Done():
			qm.logs.Queue().Info("Queue processor stopped", zap.String("reason", "context_cancelled"))
			return
		case <-stopChan:
			return
		case <-ticker.C:
			qm.processOnce()
		}
	}
}

// processOnce requeues retryable failures and admits pending downloads into free slots.
// It returns the number of downloads started.
func (qm *QueueManager) processOnce() int {
	log := qm.logs.Queue()

	if n, err := qm.downloadMgr.RequeueFailed(qm.download.MaxRetries, qm.download.RetryDelay); err != nil {
		qm.logs.LogError("Failed to requeue failed downloads", zap.Error(err))
	} else if n > 0 {
		log.Info("Requeued failed downloads", zap.Int("count", n))
	}

	slots := qm.download.ConcurrentLimit - qm.downloadMgr.ActiveCount()
	waiting := 0
	started := 0

	if slots > 0 {
		pending, err := qm.repo.FindPending()
		if err != nil {
			qm.logs.LogError("Failed to fetch pending downloads", zap.Error(err))
			return 0
		}

		for _, download := range pending {
			if qm.downloadMgr.IsActive(download.ID) {
				continue
			}
			if started >= slots {
				waiting++
				continue
			}

			outcome, err := qm.downloadMgr.Start(download.ID)
			if err != nil {
				qm.logs.LogError("Failed to start queued download",
					zap.String("id", download.ID),
					zap.Error(err))
				continue
			}
			if outcome == transfer.OutcomeStarted {
				started++
				log.Info("Admitted download",
					zap.String("id", download.ID),
					zap.String("url", download.URL),
					zap.Int("priority", download.Priority))
			}
		}
	}

	busy := qm.downloadMgr.ActiveCount() > 0 || waiting > 0
	if qm.busy && !busy {
		log.Info("Queue empty")
		if qm.notifier != nil {
			qm.notifier.NotifyQueueEmpty()
		}
	}
	qm.busy = busy

	return started
}
