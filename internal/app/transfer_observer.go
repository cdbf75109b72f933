package app

import (
	"errors"
	"time"

	"github.com/yourusername/ldm-go/internal/checksum"
	"github.com/yourusername/ldm-go/internal/domain"
	"github.com/yourusername/ldm-go/internal/transfer"
	"go.uber.org/zap"
)

const verifyProgressInterval = 250 * time.Millisecond

// jobObserver mirrors engine transitions into the record, the event hub and notifications
type jobObserver struct {
	dm  *DownloadManager
	job *job
}

// update applies fn to the record under the job lock, persists it and returns a copy
func (o *jobObserver) update(fn func(d *domain.Download)) domain.Download {
	o.job.mu.Lock()
	defer o.job.mu.Unlock()
	fn(o.job.record)
	o.dm.persist(o.job.record)
	return *o.job.record
}

func (o *jobObserver) OnRunning(src *transfer.Engine[string]) {
	resumed := src.Resumed()
	record := o.update(func(d *domain.Download) {
		d.MarkRunning(resumed)
		d.UpdateProgress(src.Transferred(), src.ContentSize())
	})
	if !resumed {
		o.job.meter.Reset()
		o.dm.notifier.NotifyDownloadStarted(&record)
	}

	o.dm.logs.Transfer().Info("Download running",
		zap.String("id", record.ID),
		zap.Bool("resumed", resumed),
		zap.Int64("size", record.ContentSize))
	o.dm.hub.Publish(EventRunning, record.ID, recordView(&record))
}

func (o *jobObserver) OnPaused(src *transfer.Engine[string]) {
	record := o.update(func(d *domain.Download) { d.MarkPaused() })
	o.job.meter.Reset()

	o.dm.logs.Transfer().Info("Download paused",
		zap.String("id", record.ID),
		zap.Int64("bytes", record.BytesTransferred))
	o.dm.hub.Publish(EventPaused, record.ID, recordView(&record))
}

func (o *jobObserver) OnStopped(src *transfer.Engine[string]) {
	record := o.update(func(d *domain.Download) { d.MarkStopped() })
	o.job.meter.Reset()

	o.dm.logs.Transfer().Info("Download stopped", zap.String("id", record.ID))
	o.dm.hub.Publish(EventStopped, record.ID, recordView(&record))
}

func (o *jobObserver) OnCompleted(src *transfer.Engine[string]) {
	verify := false
	record := o.update(func(d *domain.Download) {
		d.MarkComplete(src.Transferred())
		d.ContentSize = src.ContentSize()
		if d.HasChecksum() {
			d.SetVerifyStatus(domain.VerifyRunning, nil)
			o.job.verifying = true
			verify = true
		}
	})
	o.job.meter.Reset()

	o.dm.logs.Transfer().Info("Download completed",
		zap.String("id", record.ID),
		zap.String("file", record.FilePath),
		zap.Int64("bytes", record.BytesTransferred))
	if !verify {
		o.dm.notifier.NotifyDownloadCompleted(&record)
	}
	o.dm.hub.Publish(EventCompleted, record.ID, recordView(&record))
	if !verify {
		return
	}

	o.dm.wg.Add(1)
	go func() {
		defer o.dm.wg.Done()
		o.verify(record)
	}()
}

func (o *jobObserver) OnError(src *transfer.Engine[string], err error) {
	record := o.update(func(d *domain.Download) { d.MarkError(err) })
	o.job.meter.Reset()

	o.dm.logs.LogError("Download failed",
		zap.String("id", record.ID),
		zap.String("url", record.URL),
		zap.Error(err))
	o.dm.notifier.NotifyDownloadFailed(&record, err)
	o.dm.hub.Publish(EventError, record.ID, recordView(&record))
}

func (o *jobObserver) OnDataReceived(src *transfer.Engine[string], transferred, total int64) {
	snap, sampled := o.job.meter.Observe(transferred, total)

	o.job.mu.Lock()
	if o.job.record.Status != domain.StatusRunning {
		o.job.mu.Unlock()
		return
	}
	o.job.record.UpdateProgress(transferred, total)
	if sampled {
		o.dm.persist(o.job.record)
	}
	id := o.job.record.ID
	o.job.mu.Unlock()

	if !sampled {
		return
	}
	data := ProgressData{
		Transferred: transferred,
		Total:       total,
		Percent:     snap.Percent(),
		Rate:        snap.Rate,
	}
	if snap.ETAKnown {
		data.ETASeconds = snap.ETA.Seconds()
	}
	o.dm.hub.Publish(EventProgress, id, data)
}

// verify hashes the finished file and records the outcome
func (o *jobObserver) verify(record domain.Download) {
	log := o.dm.logs.Transfer().With(zap.String("id", record.ID))
	log.Info("Verifying checksum", zap.String("algo", record.ChecksumAlgo))

	var last time.Time
	progress := func(read, total int64) {
		if read < total && time.Since(last) < verifyProgressInterval {
			return
		}
		last = time.Now()
		o.dm.hub.Publish(EventVerifying, record.ID, ProgressData{
			Transferred: read,
			Total:       total,
			Percent:     transfer.Snapshot{Transferred: read, Total: total}.Percent(),
		})
	}

	algo, err := checksum.ParseAlgorithm(record.ChecksumAlgo)
	if err == nil {
		err = checksum.Verify(o.dm.ctx, record.FilePath, record.Checksum, algo, progress)
	}

	result := o.update(func(d *domain.Download) {
		o.job.verifying = false
		switch {
		case err == nil:
			d.SetVerifyStatus(domain.VerifyPassed, nil)
		case errors.Is(err, checksum.ErrMismatch):
			d.SetVerifyStatus(domain.VerifyMismatch, err)
		default:
			d.SetVerifyStatus(domain.VerifyErrored, err)
		}
	})

	switch result.VerifyStatus {
	case domain.VerifyPassed:
		log.Info("Checksum verified")
		o.dm.notifier.NotifyDownloadCompleted(&result)
		o.dm.hub.Publish(EventVerified, result.ID, recordView(&result))
	case domain.VerifyMismatch:
		log.Warn("Checksum mismatch", zap.Error(err))
		o.dm.notifier.NotifyChecksumFailed(&result)
		o.dm.hub.Publish(EventChecksumFailed, result.ID, recordView(&result))
	default:
		o.dm.logs.LogError("Checksum verification failed", zap.String("id", result.ID), zap.Error(err))
		o.dm.hub.Publish(EventChecksumFailed, result.ID, recordView(&result))
	}
}
