// Package bootstrap provides dependency initialization for the render service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/slidecast/internal/audio"
	"github.com/maauso/slidecast/internal/caption"
	"github.com/maauso/slidecast/internal/config"
	"github.com/maauso/slidecast/internal/job"
	"github.com/maauso/slidecast/internal/media"
	"github.com/maauso/slidecast/internal/storage"
	"github.com/maauso/slidecast/internal/timeline"
)

// fontDirName is the directory under TEMP_DIR the embedded font is written to.
const fontDirName = "fonts"

const redisPingTimeout = 5 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	RenderService *job.RenderService
	Repository    job.Repository

	closers []func() error
}

// Close releases connections opened by NewDependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize job repository
	repo, err := deps.initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Repository = repo

	// Initialize caption renderer
	captions, err := caption.NewRenderer(cfg.FontPath, filepath.Join(cfg.TempDir, fontDirName))
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("create caption renderer: %w", err)
	}
	logger.Info("caption font loaded", slog.String("font", captions.FontFile()))

	// Initialize media processor, music mixer and timeline assembler
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath,
		media.WithBitrate(cfg.VideoBitrate),
		media.WithFFprobePath(cfg.FFprobePath),
	)
	mixer := audio.NewFFmpegMixer(cfg.FFmpegPath,
		audio.WithVolume(cfg.MusicVolume),
		audio.WithFFprobePath(cfg.FFprobePath),
	)
	assembler := timeline.NewAssembler(processor, mixer, logger)

	deps.RenderService = job.NewRenderService(repo, store, processor, captions, assembler, logger)
	return deps, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.Root()),
	)
	return localStore, nil
}

// initRepository connects to Redis when REDIS_URL is set and falls back to
// the in-memory repository otherwise.
func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory job repository configured")
		return job.NewMemoryRepository(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	d.closers = append(d.closers, rdb.Close)

	logger.Info("redis job repository configured",
		slog.String("addr", opts.Addr),
		slog.String("key_prefix", cfg.RedisKeyPrefix),
	)
	return job.NewRedisRepository(rdb, job.WithKeyPrefix(cfg.RedisKeyPrefix)), nil
}
