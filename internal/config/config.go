package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DownloadDir string `envconfig:"DOWNLOAD_DIR" required:"true"`
	ThumbsDir   string `envconfig:"THUMBS_DIR" default:"thumbs"`
	DBPath      string `envconfig:"DB_PATH" default:"downloads.db"`

	FetchBin  string `envconfig:"FETCH_BIN" default:"yt-dlp"`
	FFmpegBin string `envconfig:"FFMPEG_BIN" default:"ffmpeg"`

	RetentionFor     time.Duration `envconfig:"RETENTION_FOR" default:"0"`
	RetentionCheckIn time.Duration `envconfig:"RETENTION_CHECK_IN" default:"1h"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"mediafetch"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8272"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"120s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
