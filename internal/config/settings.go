package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default values
const (
	DefaultDownloadRoot       = "downloads"
	DefaultSelectionTTL       = 24 * time.Hour
	DefaultProgressInterval   = 3 * time.Second
	DefaultStallInterval      = 20 * time.Second
	DefaultPlaylistPageSize   = 10
	DefaultSweepInterval      = time.Minute
	DefaultMetricsListenAddr  = ":9090"
	DefaultLogLevel           = "info"
	DefaultMaxUploadSizeBytes = 50 << 20 // Bot API upload cap
)

// Settings holds the full runtime configuration.
type Settings struct {
	BotToken string `yaml:"bot_token"`

	// DownloadRoot is the directory that contains per-job working directories.
	DownloadRoot string `yaml:"download_root"`

	// SelectionTTL bounds how long an unanswered selection keyboard stays valid.
	SelectionTTL time.Duration `yaml:"selection_ttl"`

	// ProgressMinInterval is the minimum spacing between two progress edits for
	// the same job.
	ProgressMinInterval time.Duration `yaml:"progress_min_interval"`

	// ProgressStallInterval is how often a heartbeat is emitted when the
	// download reports no progress.
	ProgressStallInterval time.Duration `yaml:"progress_stall_interval"`

	PlaylistPageSize int `yaml:"playlist_page_size"`

	// SessionSweepInterval drives the periodic eviction of expired sessions.
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`

	MetricsListenAddr string `yaml:"metrics_listen_addr"`
	LogLevel          string `yaml:"log_level"`

	// MaxUploadSizeBytes caps artifact size before delivery is attempted.
	MaxUploadSizeBytes int64 `yaml:"max_upload_size_bytes"`
}

// NewSettings returns settings populated with default values.
func NewSettings() *Settings {
	return &Settings{
		DownloadRoot:          DefaultDownloadRoot,
		SelectionTTL:          DefaultSelectionTTL,
		ProgressMinInterval:   DefaultProgressInterval,
		ProgressStallInterval: DefaultStallInterval,
		PlaylistPageSize:      DefaultPlaylistPageSize,
		SessionSweepInterval:  DefaultSweepInterval,
		MetricsListenAddr:     DefaultMetricsListenAddr,
		LogLevel:              DefaultLogLevel,
		MaxUploadSizeBytes:    DefaultMaxUploadSizeBytes,
	}
}

// Load reads settings from the optional yaml file at path, after merging a
// .env file (if present) into the environment. TGDL_* environment variables
// override file values.
func Load(path string) (*Settings, error) {
	// Missing .env is fine; explicit settings win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TGDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds settings from an already-populated viper instance, keeping
// defaults for unset keys.
func FromViper(v *viper.Viper) *Settings {
	cfg := NewSettings()

	cfg.BotToken = v.GetString("bot_token")
	if v.IsSet("download_root") {
		cfg.DownloadRoot = v.GetString("download_root")
	}
	if v.IsSet("selection_ttl_sec") {
		cfg.SelectionTTL = time.Duration(v.GetInt("selection_ttl_sec")) * time.Second
	}
	if v.IsSet("progress_min_interval_sec") {
		cfg.ProgressMinInterval = time.Duration(v.GetFloat64("progress_min_interval_sec") * float64(time.Second))
	}
	if v.IsSet("progress_stall_interval_sec") {
		cfg.ProgressStallInterval = time.Duration(v.GetFloat64("progress_stall_interval_sec") * float64(time.Second))
	}
	if v.IsSet("playlist_page_size") {
		cfg.PlaylistPageSize = v.GetInt("playlist_page_size")
	}
	if v.IsSet("session_sweep_interval_sec") {
		cfg.SessionSweepInterval = time.Duration(v.GetInt("session_sweep_interval_sec")) * time.Second
	}
	if v.IsSet("metrics_listen_addr") {
		cfg.MetricsListenAddr = v.GetString("metrics_listen_addr")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("max_upload_size_bytes") {
		cfg.MaxUploadSizeBytes = v.GetInt64("max_upload_size_bytes")
	}

	return cfg
}

// Validate checks settings consistency.
func (s *Settings) Validate() error {
	if s.BotToken == "" {
		return errors.New("bot_token is required (TGDL_BOT_TOKEN)")
	}
	if s.DownloadRoot == "" {
		return errors.New("download_root must not be empty")
	}
	if s.SelectionTTL <= 0 {
		return errors.New("selection_ttl_sec must be positive")
	}
	if s.ProgressMinInterval <= 0 {
		return errors.New("progress_min_interval_sec must be positive")
	}
	if s.ProgressStallInterval < s.ProgressMinInterval {
		return errors.New("progress_stall_interval_sec must be >= progress_min_interval_sec")
	}
	if s.PlaylistPageSize < 1 {
		return errors.New("playlist_page_size must be at least 1")
	}
	if s.SessionSweepInterval <= 0 {
		return errors.New("session_sweep_interval_sec must be positive")
	}
	if s.MaxUploadSizeBytes <= 0 {
		return errors.New("max_upload_size_bytes must be positive")
	}
	return nil
}
