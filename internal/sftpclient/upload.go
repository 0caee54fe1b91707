// Package sftpclient hands the quarantine holding area off to an operator
// SFTP drop for manual follow-up.
package sftpclient

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type Config struct {
	Host                  string
	Port                  int
	User                  string
	Pass                  string
	RemoteDir             string
	InsecureIgnoreHostKey bool
}

func (cfg *Config) validate() error {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return fmt.Errorf("sftp: missing env SFTP_HOST / SFTP_USER / SFTP_PASS")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	return nil
}

// UploadDir mirrors localDir into cfg.RemoteDir over one connection,
// preserving the relative layout (the per-recipient holding subdirectories).
// Returns the number of files uploaded.
func UploadDir(ctx context.Context, cfg Config, localDir string) (int, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	sshClient, cli, err := connect(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer sshClient.Close()
	defer cli.Close()

	uploaded := 0
	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		remotePath := path.Join(cfg.RemoteDir, filepath.ToSlash(rel))
		if err := put(cli, p, remotePath); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("sftp: export %s: %w", localDir, err)
	}
	return uploaded, nil
}

// UploadFile uploads a single local file into cfg.RemoteDir.
func UploadFile(ctx context.Context, cfg Config, localPath string, remoteFileName string) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	sshClient, cli, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer cli.Close()

	return put(cli, localPath, path.Join(cfg.RemoteDir, remoteFileName))
}

func connect(ctx context.Context, cfg Config) (*ssh.Client, *sftp.Client, error) {
	// TODO: replace InsecureIgnoreHostKey with a known_hosts callback once the
	// drop host has a stable key.
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         20 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, nil, fmt.Errorf("sftp: dial error: %w", r.err)
		}
		sshClient = r.client
	}

	cli, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("sftp: new client: %w", err)
	}
	return sshClient, cli, nil
}

func put(cli *sftp.Client, localPath, remotePath string) error {
	if err := cli.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("sftp: mkdir %s: %w", path.Dir(remotePath), err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	dst, err := cli.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("sftp: upload copy: %w", err)
	}
	return nil
}
