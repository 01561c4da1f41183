// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1..65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidMaxUpload is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidMaxUpload = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrInvalidMusicVolume is returned when MUSIC_VOLUME is outside (0, 1].
	ErrInvalidMusicVolume = errors.New("config: MUSIC_VOLUME must be in (0, 1]")
	// ErrInvalidBitrate is returned when VIDEO_BITRATE is not like "6000k".
	ErrInvalidBitrate = errors.New("config: VIDEO_BITRATE must look like 6000k or 6M")
	// ErrInvalidLogFormat is returned when LOG_FORMAT is not text or json.
	ErrInvalidLogFormat = errors.New("config: LOG_FORMAT must be text or json")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

var bitratePattern = regexp.MustCompile(`^[1-9][0-9]*[kKmM]?$`)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port               int    `env:"PORT, default=8080" json:"port"`
	MaxUploadMB        int64  `env:"MAX_UPLOAD_MB, default=1024" json:"max_upload_mb"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/renders" json:"temp_dir"`

	// Rendering settings
	FFmpegPath   string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath  string  `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	FontPath     string  `env:"FONT_PATH" json:"font_path,omitempty"` // Empty uses the embedded font
	VideoBitrate string  `env:"VIDEO_BITRATE, default=6000k" json:"video_bitrate"`
	MusicVolume  float64 `env:"MUSIC_VOLUME, default=0.3" json:"music_volume"`

	// Optional job status store
	RedisURL       string `env:"REDIS_URL" json:"-"` // May carry a password
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX, default=slidecast:job:" json:"redis_key_prefix"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if a Redis job store is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// MaxUploadBytes returns MAX_UPLOAD_MB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for o := range strings.SplitSeq(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// Load reads an optional .env file from the working directory, then the
// environment, and validates the result. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration through l using go-envconfig and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that values are in range.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidMaxUpload
	}
	if c.MusicVolume <= 0 || c.MusicVolume > 1 {
		return ErrInvalidMusicVolume
	}
	if !bitratePattern.MatchString(c.VideoBitrate) {
		return ErrInvalidBitrate
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, FontPath: %s, VideoBitrate: %s, MusicVolume: %g, MaxUploadMB: %d, CORSAllowedOrigins: %s, RedisURL: %s, RedisKeyPrefix: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.FontPath,
		c.VideoBitrate,
		c.MusicVolume,
		c.MaxUploadMB,
		c.CORSAllowedOrigins,
		redactURL(c.RedisURL),
		c.RedisKeyPrefix,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
