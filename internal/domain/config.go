package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains transfer-related configuration
type DownloadConfig struct {
	Dir              string        `mapstructure:"dir"`
	ChunkSize        int           `mapstructure:"chunk_size"`
	MaxRedirects     int           `mapstructure:"max_redirects"`
	MaxReconnects    int           `mapstructure:"max_reconnects"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit"`
	AutoStartWorkers bool          `mapstructure:"auto_start_workers"`
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath  string        `mapstructure:"database_path"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send, etc.
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category log files, empty disables
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8089,
		},
		Download: DownloadConfig{
			Dir:              "$HOME/Downloads/ldm",
			ChunkSize:        8192,
			MaxRedirects:     10,
			MaxReconnects:    5,
			ReconnectDelay:   time.Second,
			ConnectTimeout:   30 * time.Second,
			UserAgent:        "ldm-go/1.0",
			MaxRetries:       0,
			RetryDelay:       30 * time.Second,
			ConcurrentLimit:  3,
			AutoStartWorkers: true,
		},
		Queue: QueueConfig{
			DatabasePath:  "$HOME/.ldm/downloads.db",
			CheckInterval: 2 * time.Second,
		},
		Notification: NotificationConfig{
			Enabled: true,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.ldm/logs",
		},
	}
}
