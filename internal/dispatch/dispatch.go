// Package dispatch drives the per-recipient upload loop.
//
// Recipients are processed one at a time, files within a recipient one at a
// time. A file either ends up uploaded or quarantined; nothing is retried and
// nothing is marked locally on success, so re-running against the same staging
// directory re-uploads whatever is still present.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"report-sync/internal/lms"
)

// contentTypes maps staged file extensions to MIME types. Anything else is
// sent as a generic binary.
var contentTypes = map[string]string{
	".pdf": "application/pdf",
}

const fallbackContentType = "application/octet-stream"

type Dispatcher struct {
	Client      *lms.Client
	SemesterDir string
	ExceededDir string

	// FolderPath is the "/"-delimited destination under each recipient's
	// root, e.g. "Evaluation Reports/2024 Fall".
	FolderPath string

	log *zap.Logger
}

func New(client *lms.Client, semesterDir, exceededDir, folderPath string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Client:      client,
		SemesterDir: semesterDir,
		ExceededDir: exceededDir,
		FolderPath:  folderPath,
		log:         log,
	}
}

// Run processes every recipient identifier in order. Per-recipient and
// per-file failures are logged and never abort the run.
func (d *Dispatcher) Run(ctx context.Context, identifiers []string) {
	for i, id := range identifiers {
		d.log.Info("processing recipient",
			zap.String("username", id),
			zap.Int("index", i+1),
			zap.Int("total", len(identifiers)))
		d.processRecipient(ctx, id)
	}
}

func (d *Dispatcher) processRecipient(ctx context.Context, id string) {
	userID, kind := d.Client.ResolveUser(ctx, id)
	if kind != lms.OK {
		// The client already logged the distinguishing reason; a recipient
		// with no platform user is skipped, never an error.
		return
	}

	folderID, kind := d.Client.ResolveFolder(ctx, userID, d.FolderPath, 0)
	if kind != lms.OK {
		d.log.Error("could not get or create destination folder",
			zap.String("username", id),
			zap.Int64("user_id", userID),
			zap.String("folder_path", d.FolderPath))
		return
	}

	files, err := d.recipientFiles(id)
	if err != nil {
		d.log.Error("listing staged files failed",
			zap.String("username", id), zap.Error(err))
		return
	}

	for _, name := range files {
		d.processFile(ctx, id, userID, folderID, name)
	}
}

func (d *Dispatcher) processFile(ctx context.Context, id string, userID, folderID int64, name string) {
	src := filepath.Join(d.SemesterDir, name)
	contentType := contentTypes[strings.ToLower(filepath.Ext(name))]
	if contentType == "" {
		contentType = fallbackContentType
	}

	status, kind := d.Client.UploadFile(ctx, folderID, name, src, contentType, userID)
	if kind == lms.OK && status >= 200 && status < 300 {
		d.log.Info("uploaded",
			zap.String("file", name),
			zap.String("username", id),
			zap.Int("status", status))
		return
	}
	if kind == lms.LocalIO {
		// Nothing to relocate; the single item is skipped.
		return
	}

	d.log.Error("failed to upload",
		zap.String("file", name),
		zap.String("username", id),
		zap.Int("status", status),
		zap.String("kind", kind.String()))

	// Quota query is purely diagnostic; its result never changes the outcome.
	remaining, qkind := d.Client.RemainingSpaceMB(ctx, userID)
	if qkind != lms.OK {
		d.log.Error("unable to retrieve quota information",
			zap.String("username", id))
	} else {
		d.log.Info("remaining storage",
			zap.String("username", id),
			zap.Float64("remaining_mb", remaining))
	}

	if err := d.quarantine(src, id); err != nil {
		d.log.Error("quarantine move failed",
			zap.String("file", src), zap.Error(err))
	}
}

// recipientFiles lists staged filenames containing the identifier followed by
// the .pdf suffix.
func (d *Dispatcher) recipientFiles(id string) ([]string, error) {
	entries, err := os.ReadDir(d.SemesterDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), id+".pdf") {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// quarantine relocates a rejected file into the recipient's holding directory.
func (d *Dispatcher) quarantine(src, id string) error {
	holdDir := filepath.Join(d.ExceededDir, "file_storage_exceeded_"+id)
	if err := os.MkdirAll(holdDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", holdDir, err)
	}

	dest := filepath.Join(holdDir, filepath.Base(src))
	if err := moveFile(src, dest); err != nil {
		return err
	}

	d.log.Info("moved file to exceeded-storage holding area",
		zap.String("from", src),
		zap.String("to", dest))
	return nil
}

// moveFile renames src to dest, falling back to copy-and-delete when the
// holding area lives on a different filesystem.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return os.Remove(src)
}
