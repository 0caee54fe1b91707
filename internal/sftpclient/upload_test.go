package sftpclient

import (
	"context"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{Host: "drop-host", User: "ops", Pass: "secret"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if cfg.Port != 22 {
		t.Errorf("expected default port 22, got %d", cfg.Port)
	}
	if cfg.RemoteDir != "/" {
		t.Errorf("expected default remote dir '/', got %q", cfg.RemoteDir)
	}

	missing := Config{}
	if err := missing.validate(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

// The actual transfer needs a live SFTP server; these exercise the validation
// and dial-failure paths only.

func TestUploadDirMissingCredentials(t *testing.T) {
	_, err := UploadDir(context.Background(), Config{}, t.TempDir())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "sftp: missing env SFTP_HOST / SFTP_USER / SFTP_PASS") {
		t.Errorf("unexpected error %q", err.Error())
	}
}

func TestUploadFileDialFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := UploadFile(ctx, Config{Host: "drop-host", User: "ops", Pass: "secret"}, "file.pdf", "file.pdf")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	// Either the canceled context or the dial failure surfaces first.
	if !strings.Contains(err.Error(), "sftp: dial") {
		t.Errorf("expected a dial error, got %q", err.Error())
	}
}
