package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ldm-go/api"
	"github.com/yourusername/ldm-go/api/handlers"
	"github.com/yourusername/ldm-go/internal/app"
	"github.com/yourusername/ldm-go/internal/infrastructure"
	"github.com/yourusername/ldm-go/internal/transfer"
	"github.com/yourusername/ldm-go/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run the server in the foreground instead of daemonizing")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	if !*serverMode && !*foreground {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary in server mode as a detached background process
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Category files are optional: an empty logs_dir keeps everything on the main logger
	var multiLog *logger.MultiLogger
	if config.Logging.LogsDir != "" {
		multiLog, err = logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		defer multiLog.Close()
	}

	logs := logger.NewRouter(log, multiLog)
	defer logs.Sync()

	log.Info("Starting ldm server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("download_dir", config.Download.Dir),
		zap.Int("concurrent_limit", config.Download.ConcurrentLimit))

	if err := os.MkdirAll(config.Download.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	repo, err := infrastructure.NewSQLiteDownloadRepository(config.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	transport := transfer.NewHTTPTransport(transfer.TransportOptions{
		ConnectTimeout: config.Download.ConnectTimeout,
		MaxRedirects:   config.Download.MaxRedirects,
		UserAgent:      config.Download.UserAgent,
		Logger:         logs.Transfer(),
	})

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	hub := app.NewEventHub()

	downloadMgr := app.NewDownloadManager(repo, transport, notifier, hub, &config.Download, logs)
	if _, err := downloadMgr.RecoverOrphaned(); err != nil {
		log.Warn("Failed to recover orphaned downloads", zap.Error(err))
	}

	queueMgr := app.NewQueueManager(repo, downloadMgr, &config.Queue, &config.Download, notifier, logs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Download.AutoStartWorkers {
		if err := queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	router := api.SetupRouter(ctx, queueMgr, downloadMgr, logs, config.Logging.LogsDir)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if queueMgr.IsRunning() {
		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	stopped := downloadMgr.Shutdown(shutdownCtx)
	log.Info("Stopped active downloads", zap.Int("count", stopped))

	// Event streams are hijacked connections that server.Shutdown does not wait for
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}
