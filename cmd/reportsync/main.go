package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"report-sync/internal/config"
	"report-sync/internal/dispatch"
	"report-sync/internal/extract"
	"report-sync/internal/lms"
	"report-sync/internal/roster"
)

// reportsync uploads every staged evaluation report to its recipient's folder
// on the LMS file store. It takes no arguments: the job reads config.ini from
// the working directory and exits 0 on normal completion.
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

	logger = logger.With(zap.String("run_id", uuid.NewString()))

	// The roster export must be present and readable or the run aborts.
	// Recipient resolution itself goes through the live user search, not the
	// roster.
	users, err := roster.Load(cfg.RosterPath())
	if err != nil {
		logger.Error("roster unreadable, aborting run", zap.Error(err))
		return err
	}
	logger.Info("roster loaded",
		zap.String("path", cfg.RosterPath()),
		zap.Int("users", len(users)))

	semesterDir := cfg.SemesterDir()
	logger.Info("running semester",
		zap.String("semester", filepath.Base(semesterDir)),
		zap.String("directory", semesterDir))

	ids, err := extract.UniqueIdentifiers(semesterDir)
	if err != nil {
		return err
	}
	logger.Info("extracted recipient identifiers", zap.Int("count", len(ids)))

	client := lms.New(cfg.CanvasAPI.URL, cfg.CanvasAPI.Token, logger)
	folderPath := cfg.DirectoryPaths.EvalReportsPath + "/" + cfg.DirectoryPaths.UserSemesterFolder

	d := dispatch.New(client, semesterDir, cfg.ExceededDir(), folderPath, logger)
	d.Run(context.Background(), ids)

	logger.Info("finished processing all files")
	return nil
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
