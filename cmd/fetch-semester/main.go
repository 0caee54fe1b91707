package main

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"report-sync/internal/archive"
	"report-sync/internal/config"
)

// fetch-semester stages a new semester: it downloads and extracts the newest
// report archive, downloads the newest roster export, and rewrites config.ini
// to record what it fetched. Each S3 step is independent; a failure is logged
// and the remaining steps still run.
func main() {
	start := time.Now()

	err := run()

	log.Printf("Execution finished in %s", time.Since(start))

	if err != nil {
		log.Fatalf("Job failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load("config.ini")
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := setupDirectories(cfg, logger); err != nil {
		return err
	}

	fetcher, err := archive.NewFetcher(cfg.S3.Region, logger)
	if err != nil {
		return err
	}

	fetchArchive(cfg, fetcher, logger)
	fetchRoster(cfg, fetcher, logger)

	return cfg.Save()
}

// setupDirectories makes sure the staging and holding directories exist,
// seeding default folder names into the config when they are blank.
func setupDirectories(cfg *config.Config, logger *zap.Logger) error {
	if cfg.DirectoryPaths.SemesterDirectoryPath == "" {
		cfg.SetSemesterFolder("semester_files")
	}
	if err := os.MkdirAll(cfg.SemesterDir(), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ExceededDir(), 0755); err != nil {
		return err
	}

	logger.Info("semester directory", zap.String("path", cfg.SemesterDir()))
	return nil
}

func fetchArchive(cfg *config.Config, fetcher *archive.Fetcher, logger *zap.Logger) {
	zipPath, semester, err := fetcher.FetchNewestZip(cfg.S3.ArchiveBucket, cfg.S3.ArchivePrefix, cfg.SemesterDir())
	if err != nil {
		logger.Error("semester archive fetch failed", zap.Error(err))
		return
	}
	if semester == "" {
		logger.Warn("could not derive a semester name from the archive filename",
			zap.String("archive", filepath.Base(zipPath)))
	} else {
		logger.Info("downloaded semester archive",
			zap.String("archive", filepath.Base(zipPath)),
			zap.String("semester", semester))
	}

	names, err := archive.ExtractZip(zipPath, cfg.SemesterDir())
	if err != nil {
		logger.Error("archive extraction failed",
			zap.String("archive", zipPath), zap.Error(err))
		return
	}
	logger.Info("extracted semester archive",
		zap.String("into", cfg.SemesterDir()),
		zap.Int("files", len(names)))
}

func fetchRoster(cfg *config.Config, fetcher *archive.Fetcher, logger *zap.Logger) {
	local, err := fetcher.FetchNewestObject(cfg.S3.RosterBucket, cfg.S3.RosterPrefix, cfg.BaseDir())
	if err != nil {
		logger.Error("roster fetch failed", zap.Error(err))
		return
	}

	cfg.SetRosterFile(filepath.Base(local))
	logger.Info("downloaded roster export", zap.String("file", filepath.Base(local)))
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile()), 0755); err != nil {
		return nil, err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout", cfg.LogFile()}
	logCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Logging.Level == "debug" {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return logCfg.Build()
}
