package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/ldm-go/api/handlers"
	"github.com/yourusername/ldm-go/internal/app"
	"github.com/yourusername/ldm-go/internal/domain"
	"github.com/yourusername/ldm-go/internal/infrastructure"
	"github.com/yourusername/ldm-go/internal/transfer"
	"github.com/yourusername/ldm-go/pkg/logger"
)

type testServer struct {
	*httptest.Server
	downloadMgr *app.DownloadManager
	queueMgr    *app.QueueManager
	dir         string
	logsDir     string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	logsDir := t.TempDir()

	repo, err := infrastructure.NewSQLiteDownloadRepository(filepath.Join(t.TempDir(), "ldm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logs := logger.NewRouter(zap.NewNop(), nil)
	config := domain.DefaultConfig()
	config.Download.Dir = dir
	config.Queue.CheckInterval = time.Hour

	downloadMgr := app.NewDownloadManager(repo, transfer.NewHTTPTransport(transfer.TransportOptions{}), nil, app.NewEventHub(), &config.Download, logs)
	queueMgr := app.NewQueueManager(repo, downloadMgr, &config.Queue, &config.Download, nil, logs)

	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(SetupRouter(ctx, queueMgr, downloadMgr, logs, logsDir))
	t.Cleanup(func() {
		server.Close()
		if queueMgr.IsRunning() {
			queueMgr.Stop()
		}
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		downloadMgr.Shutdown(shutdownCtx)
	})

	return &testServer{Server: server, downloadMgr: downloadMgr, queueMgr: queueMgr, dir: dir, logsDir: logsDir}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (s *testServer) add(t *testing.T, req app.AddRequest) app.DownloadView {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/v1/downloads", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var view app.DownloadView
	require.NoError(t, json.Unmarshal(body, &view))
	return view
}

func fileServer(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
}

func TestAPI_AddAndGet(t *testing.T) {
	s := setupTestServer(t)

	view := s.add(t, app.AddRequest{URL: "https://example.com/pub/file.iso", Priority: 2})
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, domain.StatusQueued, view.Status)
	assert.Equal(t, filepath.Join(s.dir, "file.iso"), view.FilePath)
	assert.Equal(t, 2, view.Priority)

	resp, body := s.do(t, http.MethodGet, "/api/v1/downloads/"+view.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got app.DownloadView
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, view.ID, got.ID)
	assert.Equal(t, int64(transfer.UnknownSize), got.ContentSize)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/downloads/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AddRejectsBadRequests(t *testing.T) {
	s := setupTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/api/v1/downloads", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "url is required")

	resp, _ = s.do(t, http.MethodPost, "/api/v1/downloads", app.AddRequest{URL: "ftp://example.com/a"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	s.add(t, app.AddRequest{URL: "https://example.com/same.bin"})
	resp, body := s.do(t, http.MethodPost, "/api/v1/downloads", app.AddRequest{URL: "https://example.org/same.bin"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "already targets")
}

func TestAPI_DownloadLifecycle(t *testing.T) {
	s := setupTestServer(t)
	data := bytes.Repeat([]byte("ldm-go "), 20_000)
	origin := fileServer(data)
	defer origin.Close()

	view := s.add(t, app.AddRequest{URL: origin.URL + "/payload.txt"})

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/events?id=" + view.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.downloadMgr.Hub().SubscriberCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp, body := s.do(t, http.MethodPost, "/api/v1/downloads/"+view.ID+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var control handlers.ControlResponse
	require.NoError(t, json.Unmarshal(body, &control))
	assert.Equal(t, "started", control.Outcome)
	assert.True(t, control.Accepted)

	var seen []app.EventType
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var event app.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, view.ID, event.ID)
		seen = append(seen, event.Type)
		if event.Type == app.EventCompleted {
			break
		}
	}
	assert.Contains(t, seen, app.EventRunning)

	resp, body = s.do(t, http.MethodGet, "/api/v1/downloads/"+view.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got app.DownloadView
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, domain.StatusComplete, got.Status)
	assert.Equal(t, int64(len(data)), got.BytesTransferred)
	assert.Equal(t, 100.0, got.Percent)

	written, err := os.ReadFile(got.FilePath)
	require.NoError(t, err)
	assert.Equal(t, data, written)

	// pausing a finished download does nothing
	resp, body = s.do(t, http.MethodPost, "/api/v1/downloads/"+view.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &control))
	assert.Equal(t, "ignored", control.Outcome)

	require.Eventually(t, func() bool { return !s.downloadMgr.IsActive(view.ID) }, 5*time.Second, 10*time.Millisecond)
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/downloads/"+view.ID+"?delete_file=true", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoFileExists(t, got.FilePath)

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/downloads/"+view.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_StopQueuedDownload(t *testing.T) {
	s := setupTestServer(t)
	view := s.add(t, app.AddRequest{URL: "https://example.com/later.bin"})

	resp, body := s.do(t, http.MethodPost, "/api/v1/downloads/"+view.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var control handlers.ControlResponse
	require.NoError(t, json.Unmarshal(body, &control))
	assert.Equal(t, "stopped", control.Outcome)
	require.NotNil(t, control.Download)
	assert.Equal(t, domain.StatusStopped, control.Download.Status)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/downloads/missing/toggle", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListAndStats(t *testing.T) {
	s := setupTestServer(t)
	s.add(t, app.AddRequest{URL: "https://example.com/one.bin"})
	s.add(t, app.AddRequest{URL: "https://example.com/two.bin", StartPaused: true})

	resp, body := s.do(t, http.MethodGet, "/api/v1/downloads", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []app.DownloadView
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 2)

	resp, body = s.do(t, http.MethodGet, "/api/v1/downloads?status=paused", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var paused []app.DownloadView
	require.NoError(t, json.Unmarshal(body, &paused))
	require.Len(t, paused, 1)
	assert.True(t, strings.HasSuffix(paused[0].FilePath, "two.bin"))

	resp, body = s.do(t, http.MethodGet, "/api/v1/downloads/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats domain.DownloadStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(1), stats.Paused)
}

func TestAPI_QueueAndHealth(t *testing.T) {
	s := setupTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/v1/queue/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status app.QueueStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Running)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/queue/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Queue.Running)

	resp, _ = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/queue/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, s.queueMgr.IsRunning())
}

func TestAPI_Logs(t *testing.T) {
	s := setupTestServer(t)

	lines := strings.Join([]string{
		`{"level":"info","ts":"2024-05-01T10:00:00.000Z","msg":"Admitted download","id":"a1"}`,
		`{"level":"info","ts":"2024-05-01T10:00:01.000Z","msg":"Queue empty"}`,
	}, "\n") + "\n"
	day := time.Now()
	require.NoError(t, os.WriteFile(logger.LogPath(s.logsDir, logger.CategoryQueue, day), []byte(lines), 0644))

	resp, body := s.do(t, http.MethodGet, "/api/v1/logs/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "transfer")

	resp, body = s.do(t, http.MethodGet, "/api/v1/logs/queue?q=admitted", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Count   int               `json:"count"`
		Entries []logger.LogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, 1, result.Count)
	assert.Equal(t, "Admitted download", result.Entries[0].Message)
	assert.Equal(t, "a1", result.Entries[0].Fields["id"])

	resp, _ = s.do(t, http.MethodGet, "/api/v1/logs/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/logs/queue?date=05-01-2024", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/logs/queue/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, lines, string(body))
}

func TestAPI_UnknownRoute(t *testing.T) {
	s := setupTestServer(t)
	resp, _ := s.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
