package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is loaded once at process start and handed to every component
// constructor. Relative paths in the file resolve against the directory
// containing config.ini.
type Config struct {
	CanvasAPI struct {
		URL   string `mapstructure:"url"`
		Token string `mapstructure:"token"`
	} `mapstructure:"canvas_api"`

	DirectoryPaths struct {
		SemesterDirectoryPath string  `mapstructure:"semester_directory_path"`
		UserFiles             string  `mapstructure:"user_files"`
		ExceededStorageDir    string  `mapstructure:"exceeded_storage_dir_path"`
		EvalReportsPath       string  `mapstructure:"eval_reports_path"`
		UserSemesterFolder    string  `mapstructure:"user_semester_folder_path"`
		TotalQuotaMB          float64 `mapstructure:"total_quota_mb"`
	} `mapstructure:"directory_paths"`

	S3 struct {
		ArchiveBucket string `mapstructure:"archive_bucket"`
		ArchivePrefix string `mapstructure:"archive_prefix"`
		RosterBucket  string `mapstructure:"roster_bucket"`
		RosterPrefix  string `mapstructure:"roster_prefix"`
		Region        string `mapstructure:"region"`
	} `mapstructure:"s3"`

	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`

	// baseDir is the directory holding config.ini.
	baseDir string
	v       *viper.Viper
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("ini")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", configPath, err)
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", configPath, err)
	}
	cfg.baseDir = filepath.Dir(abs)
	cfg.v = v

	if cfg.CanvasAPI.URL == "" || cfg.CanvasAPI.Token == "" {
		return nil, fmt.Errorf("config: missing canvas_api url/token in %s", configPath)
	}
	if cfg.DirectoryPaths.ExceededStorageDir == "" {
		cfg.DirectoryPaths.ExceededStorageDir = "file_storage_exceeded"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join("logs", "process_files.log")
	}

	return &cfg, nil
}

// BaseDir returns the directory containing the loaded config file.
func (c *Config) BaseDir() string { return c.baseDir }

// SemesterDir is the absolute path of the staging directory.
func (c *Config) SemesterDir() string {
	return c.resolve(c.DirectoryPaths.SemesterDirectoryPath)
}

// RosterPath is the absolute path of the user roster CSV.
func (c *Config) RosterPath() string {
	return c.resolve(c.DirectoryPaths.UserFiles)
}

// ExceededDir is the absolute path of the quarantine holding area.
func (c *Config) ExceededDir() string {
	return c.resolve(c.DirectoryPaths.ExceededStorageDir)
}

// LogFile is the absolute path of the pipeline log file.
func (c *Config) LogFile() string {
	return c.resolve(c.Logging.File)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// SetSemesterFolder records the extracted semester folder name. Stored as a
// name relative to the config directory, the way the ingestion step leaves it.
func (c *Config) SetSemesterFolder(name string) {
	c.DirectoryPaths.SemesterDirectoryPath = name
	c.v.Set("directory_paths.semester_directory_path", name)
}

// SetRosterFile records the filename of the most recently fetched roster export.
func (c *Config) SetRosterFile(name string) {
	c.DirectoryPaths.UserFiles = name
	c.v.Set("directory_paths.user_files", name)
}

// Save rewrites the config file with any recorded changes.
func (c *Config) Save() error {
	if err := c.v.WriteConfig(); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}
