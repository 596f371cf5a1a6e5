package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Remote
		Connectivity
		Reader
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Remote struct {
		BaseURL    string
		Timeout    time.Duration
		RetryCount int
	}
	Connectivity struct {
		Enabled     bool
		Schedule    string        // Cron format or descriptor: "@every 30s"
		DialTimeout time.Duration // Timeout of one reachability check
	}
	Reader struct {
		ScrollDebounce time.Duration
		ChapterWindow  int // Chapters materialized per load
		LoanTTL        time.Duration
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Remote catalog defaults
	v.SetDefault("remote_base_url", DefaultRemoteBaseURL)
	v.SetDefault("remote_timeout", "10s")
	v.SetDefault("remote_retry_count", 2)

	// Connectivity monitor defaults
	v.SetDefault("connectivity_enabled", true)
	v.SetDefault("connectivity_schedule", "@every 30s")
	v.SetDefault("connectivity_dial_timeout", "3s")

	// Reader defaults
	v.SetDefault("scroll_debounce", "1s")
	v.SetDefault("chapter_window", 1)
	v.SetDefault("blob_loan_ttl", "30m")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Remote: Remote{
			BaseURL:    v.GetString("REMOTE_BASE_URL"),
			Timeout:    v.GetDuration("REMOTE_TIMEOUT"),
			RetryCount: v.GetInt("REMOTE_RETRY_COUNT"),
		},
		Connectivity: Connectivity{
			Enabled:     v.GetBool("CONNECTIVITY_ENABLED"),
			Schedule:    v.GetString("CONNECTIVITY_SCHEDULE"),
			DialTimeout: v.GetDuration("CONNECTIVITY_DIAL_TIMEOUT"),
		},
		Reader: Reader{
			ScrollDebounce: v.GetDuration("SCROLL_DEBOUNCE"),
			ChapterWindow:  v.GetInt("CHAPTER_WINDOW"),
			LoanTTL:        v.GetDuration("BLOB_LOAN_TTL"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
	}
}
