package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ldm-go/internal/domain"
)

func newTestQueue(env *testEnv) *QueueManager {
	return NewQueueManager(env.repo, env.dm, &domain.QueueConfig{CheckInterval: time.Hour}, env.config, env.notifier, nil)
}

func waitIdle(t *testing.T, dm *DownloadManager) {
	t.Helper()
	require.Eventually(t, func() bool { return dm.ActiveCount() == 0 }, eventTimeout, 10*time.Millisecond)
}

func TestQueueManager_StartStop(t *testing.T) {
	env := newTestEnv(t)
	qm := newTestQueue(env)

	assert.False(t, qm.IsRunning())
	assert.Error(t, qm.Stop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, qm.Start(ctx))
	assert.True(t, qm.IsRunning())
	assert.Error(t, qm.Start(ctx), "already running")

	require.NoError(t, qm.Stop())
	assert.False(t, qm.IsRunning())

	// restartable after a stop
	require.NoError(t, qm.Start(ctx))
	require.NoError(t, qm.Stop())
}

func TestQueueManager_AdmitsUpToLimit(t *testing.T) {
	env := newTestEnv(t)
	server, release := gatedServer(t, 65_536)
	qm := newTestQueue(env)

	var ids []string
	for i, name := range []string{"first.bin", "second.bin", "third.bin"} {
		view, err := env.dm.Add(AddRequest{URL: server.URL + "/" + name, Priority: 3 - i})
		require.NoError(t, err)
		ids = append(ids, view.ID)
	}

	assert.Equal(t, 2, qm.processOnce())
	env.waitStatus(t, ids[0], domain.StatusRunning)
	env.waitStatus(t, ids[1], domain.StatusRunning)

	status := qm.Status()
	assert.Equal(t, 2, status.Active)
	assert.Equal(t, 2, status.ConcurrentLimit)
	assert.Equal(t, domain.StatusQueued, env.repo.stored(ids[2]).Status)

	assert.Zero(t, qm.processOnce(), "no free slot")

	release()
	env.waitStatus(t, ids[0], domain.StatusComplete)
	env.waitStatus(t, ids[1], domain.StatusComplete)
	waitIdle(t, env.dm)

	assert.Equal(t, 1, qm.processOnce())
	env.waitStatus(t, ids[2], domain.StatusComplete)
	waitIdle(t, env.dm)

	assert.NotContains(t, env.notifier.Calls(), "queue_empty")
	assert.Zero(t, qm.processOnce())
	assert.Zero(t, qm.processOnce())

	queueEmpty := 0
	for _, call := range env.notifier.Calls() {
		if call == "queue_empty" {
			queueEmpty++
		}
	}
	assert.Equal(t, 1, queueEmpty)
}

func TestQueueManager_SkipsPausedAndStopped(t *testing.T) {
	env := newTestEnv(t)
	qm := newTestQueue(env)

	paused, err := env.dm.Add(AddRequest{URL: "https://example.com/p.bin", StartPaused: true})
	require.NoError(t, err)

	stopped := domain.NewDownload("https://example.com/s.bin", filepath.Join(env.dir, "s.bin"))
	stopped.MarkStopped()
	require.NoError(t, env.repo.Create(stopped))

	assert.Zero(t, qm.processOnce())
	assert.Equal(t, domain.StatusPaused, env.repo.stored(paused.ID).Status)
	assert.Zero(t, env.dm.ActiveCount())
}

func TestQueueManager_RetriesFailed(t *testing.T) {
	env := newTestEnv(t)
	data := payload(20_000)
	server := fileServer(data)
	defer server.Close()

	env.config.MaxRetries = 2
	env.config.RetryDelay = 0
	qm := newTestQueue(env)

	failed := domain.NewDownload(server.URL+"/retry.bin", filepath.Join(env.dir, "retry.bin"))
	failed.MarkError(errors.New("connection reset"))
	require.NoError(t, env.repo.Create(failed))

	assert.Equal(t, 1, qm.processOnce())
	env.waitEvent(t, EventCompleted, failed.ID)

	stored := env.repo.stored(failed.ID)
	assert.Equal(t, domain.StatusComplete, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestQueueManager_ProcessesOnStart(t *testing.T) {
	env := newTestEnv(t)
	data := payload(20_000)
	server := fileServer(data)
	defer server.Close()

	view, err := env.dm.Add(AddRequest{URL: server.URL + "/auto.bin"})
	require.NoError(t, err)

	qm := newTestQueue(env)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, qm.Start(ctx))
	defer qm.Stop()

	env.waitEvent(t, EventCompleted, view.ID)
	assert.Equal(t, domain.StatusComplete, env.repo.stored(view.ID).Status)
}
