package app

import (
	"sort"
	"sync"

	"github.com/yourusername/ldm-go/internal/domain"
)

// mockRepo is an in-memory DownloadRepository. It stores copies so callers cannot alias records.
type mockRepo struct {
	mu        sync.Mutex
	downloads map[string]*domain.Download
	updates   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{downloads: make(map[string]*domain.Download)}
}

func (m *mockRepo) Create(download *domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *download
	m.downloads[download.ID] = &d
	return nil
}

func (m *mockRepo) Update(download *domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *download
	m.downloads[download.ID] = &d
	m.updates++
	return nil
}

func (m *mockRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.downloads[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.downloads, id)
	return nil
}

func (m *mockRepo) FindByID(id string) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.downloads[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepo) FindByFilePath(path string, statuses []domain.DownloadStatus) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.downloads {
		if d.FilePath != path {
			continue
		}
		for _, s := range statuses {
			if d.Status == s {
				c := *d
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (m *mockRepo) FindByStatus(status domain.DownloadStatus) ([]*domain.Download, error) {
	return m.filter(func(d *domain.Download) bool { return d.Status == status }), nil
}

func (m *mockRepo) FindPending() ([]*domain.Download, error) {
	pending := m.filter(func(d *domain.Download) bool { return d.Status == domain.StatusQueued })
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (m *mockRepo) FindAll(filters map[string]interface{}) ([]*domain.Download, error) {
	return m.filter(func(d *domain.Download) bool {
		if status, ok := filters["status"]; ok && d.Status != status {
			return false
		}
		return true
	}), nil
}

func (m *mockRepo) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.downloads)), nil
}

func (m *mockRepo) CountByStatus(status domain.DownloadStatus) (int64, error) {
	return int64(len(m.filter(func(d *domain.Download) bool { return d.Status == status }))), nil
}

func (m *mockRepo) ResetOrphaned() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.downloads {
		if d.Status == domain.StatusRunning || d.Status == domain.StatusPaused {
			d.MarkStopped()
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) GetStats() (*domain.DownloadStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.DownloadStats{Total: int64(len(m.downloads))}
	for _, d := range m.downloads {
		switch d.Status {
		case domain.StatusQueued:
			stats.Queued++
		case domain.StatusPaused:
			stats.Paused++
		case domain.StatusRunning:
			stats.Running++
		case domain.StatusComplete:
			stats.Complete++
		case domain.StatusStopped:
			stats.Stopped++
		case domain.StatusError:
			stats.Error++
		}
	}
	return stats, nil
}

func (m *mockRepo) filter(keep func(d *domain.Download) bool) []*domain.Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Download
	for _, d := range m.downloads {
		if keep(d) {
			c := *d
			out = append(out, &c)
		}
	}
	return out
}

func (m *mockRepo) stored(id string) domain.Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.downloads[id]
}
