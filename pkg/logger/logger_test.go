package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Info("Server started", zap.Int("port", 8089))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Server started"`)
	assert.Contains(t, string(data), `"port":8089`)
}

func TestMultiLogger_WritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.Transfer().Info("Transfer running", zap.String("id", "abc"))
	ml.Queue().Info("Admitted download", zap.String("id", "abc"))
	ml.Error().Info("ignored below error level")
	ml.Error().Error("Transfer failed", zap.String("id", "abc"))
	require.NoError(t, ml.Close())

	reader := NewLogReader(dir)
	today := time.Now()

	transfer, err := reader.ReadLogs(CategoryTransfer, today, "", 0)
	require.NoError(t, err)
	require.Len(t, transfer, 1)
	assert.Equal(t, "Transfer running", transfer[0].Message)
	assert.Equal(t, "info", transfer[0].Level)
	assert.Equal(t, "abc", transfer[0].Fields["id"])

	errs, err := reader.ReadLogs(CategoryError, today, "", 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "Transfer failed", errs[0].Message)
}

func TestMultiLogger_RollsOverAtMidnight(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.Local)
	now := day
	ml, err := newMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir}, func() time.Time { return now })
	require.NoError(t, err)
	defer ml.Close()

	ml.Queue().Info("Before midnight")
	now = day.Add(2 * time.Minute)
	ml.Queue().Info("After midnight")
	require.NoError(t, ml.Sync())

	reader := NewLogReader(dir)
	first, err := reader.ReadLogs(CategoryQueue, day, "", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "Before midnight", first[0].Message)

	second, err := reader.ReadLogs(CategoryQueue, now, "", 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "After midnight", second[0].Message)
}

func TestMultiLogger_RequiresDir(t *testing.T) {
	_, err := NewMultiLogger(MultiLoggerConfig{})
	assert.Error(t, err)
}

func TestLogReader_LimitAndQuery(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	lines := `{"ts":"t1","level":"info","msg":"Admitted download","id":"a"}
{"ts":"t2","level":"info","msg":"Admitted download","id":"b"}
not json at all
{"ts":"t3","level":"warn","msg":"Queue full","id":"c"}
`
	require.NoError(t, os.WriteFile(LogPath(dir, CategoryQueue, day), []byte(lines), 0644))

	reader := NewLogReader(dir)

	last, err := reader.ReadLogs(CategoryQueue, day, "", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "not json at all", last[0].Message)
	assert.Equal(t, "Queue full", last[1].Message)

	matched, err := reader.ReadLogs(CategoryQueue, day, "ADMITTED", 0)
	require.NoError(t, err)
	assert.Len(t, matched, 2)

	missing, err := reader.ReadLogs(CategoryError, day, "", 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRouter_FallsBackToBase(t *testing.T) {
	base := zap.NewNop()
	r := NewRouter(base, nil)

	assert.Same(t, base, r.Transfer())
	assert.Same(t, base, r.Queue())
	assert.Nil(t, r.Multi())
	r.LogError("nothing configured")
}

func TestRouter_MirrorsIntoCategory(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	r := NewRouter(zap.NewNop(), ml)
	r.Queue().Info("Queue started")
	r.LogError("Repository unavailable")
	require.NoError(t, ml.Close())

	entries, err := NewLogReader(dir).ReadLogs(CategoryQueue, time.Now(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Queue started", entries[0].Message)

	errs, err := NewLogReader(dir).ReadLogs(CategoryError, time.Now(), "", 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("transfer")
	require.NoError(t, err)
	assert.Equal(t, CategoryTransfer, c)

	_, err = ParseCategory("web")
	assert.Error(t, err)
}
