package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"report-sync/internal/config"
	"report-sync/internal/sftpclient"
)

// export-quarantine pushes the exceeded-storage holding area to an operator
// SFTP drop so the rejected reports can be followed up by hand. SFTP settings
// come from the environment; the holding area location comes from config.ini.
func main() {
	cfg, err := config.Load("config.ini")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	sftpCfg := sftpclient.Config{
		Host:      os.Getenv("SFTP_HOST"),
		Port:      getenvInt("SFTP_PORT", 22),
		User:      os.Getenv("SFTP_USER"),
		Pass:      os.Getenv("SFTP_PASS"),
		RemoteDir: getenv("SFTP_DIR", "/inbound"),
	}

	exceededDir := cfg.ExceededDir()
	if _, err := os.Stat(exceededDir); err != nil {
		log.Fatalf("holding area %s not readable: %v", exceededDir, err)
	}

	n, err := sftpclient.UploadDir(context.Background(), sftpCfg, exceededDir)
	if err != nil {
		log.Fatalf("export failed after %d files: %v", n, err)
	}

	log.Printf("exported %d quarantined files to %s:%s", n, sftpCfg.Host, sftpCfg.RemoteDir)
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
