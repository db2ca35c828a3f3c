// Package config loads ytdl-web settings from defaults, an optional YAML
// file, .env files, the environment and command-line flags, in that order of
// increasing precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/lvcoi/ytdl-web/internal/logging"
)

const (
	EngineYtdlp   = "ytdlp"
	EngineYouTube = "youtube"
)

// Config holds every runtime setting of the server.
type Config struct {
	Addr         string        `yaml:"addr"`
	OutputDir    string        `yaml:"output_dir"`
	Engine       string        `yaml:"engine"`
	YtdlpPath    string        `yaml:"ytdlp_path"`
	YtdlpInstall bool          `yaml:"ytdlp_install"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`

	MaxWorkers int `yaml:"max_workers"`
	MaxQueued  int `yaml:"max_queued"`

	JobCompletedTTL    time.Duration `yaml:"job_completed_ttl"`
	JobErroredTTL      time.Duration `yaml:"job_errored_ttl"`
	JobCleanupInterval time.Duration `yaml:"job_cleanup_interval"`

	// StrictNotFound makes GET /progress/{id} answer 404 for unknown ids
	// instead of 200 with an error body.
	StrictNotFound bool `yaml:"strict_not_found"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SessionSecret string `yaml:"session_secret"`

	CatalogPath string   `yaml:"catalog_path"`
	TagAudio    bool     `yaml:"tag_audio"`
	S3          S3Config `yaml:"s3"`
}

// S3Config configures publishing of finished artifacts. Publishing is
// disabled while Bucket is empty.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Enabled reports whether an upload target is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:               ":5000",
		OutputDir:          "downloads",
		Engine:             EngineYtdlp,
		ProbeTimeout:       3 * time.Minute,
		HTTPTimeout:        3 * time.Minute,
		MaxWorkers:         4,
		MaxQueued:          32,
		JobCompletedTTL:    15 * time.Minute,
		JobErroredTTL:      30 * time.Minute,
		JobCleanupInterval: time.Minute,
		LogLevel:           "info",
		LogFormat:          "text",
		TagAudio:           true,
	}
}

// Load builds the configuration. path names an optional YAML file; when it
// is empty YTDL_WEB_CONFIG is consulted. Flags are applied by the caller
// afterwards (see BindFlags).
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := loadEnvFiles("."); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv("YTDL_WEB_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.ensureSessionSecret(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) ensureSessionSecret() error {
	if c.SessionSecret != "" {
		return nil
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating session secret: %w", err)
	}
	c.SessionSecret = hex.EncodeToString(buf)
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	switch c.Engine {
	case EngineYtdlp, EngineYouTube:
	default:
		errs = append(errs, fmt.Errorf("engine %q is not supported (expected %s or %s)", c.Engine, EngineYtdlp, EngineYouTube))
	}
	if c.MaxWorkers < 0 {
		errs = append(errs, errors.New("max_workers must be >= 0"))
	}
	if c.MaxQueued < 0 {
		errs = append(errs, errors.New("max_queued must be >= 0"))
	}
	for name, d := range map[string]time.Duration{
		"probe_timeout":        c.ProbeTimeout,
		"http_timeout":         c.HTTPTimeout,
		"job_completed_ttl":    c.JobCompletedTTL,
		"job_errored_ttl":      c.JobErroredTTL,
		"job_cleanup_interval": c.JobCleanupInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not supported (expected text or json)", c.LogFormat))
	}
	if c.S3.Enabled() && (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, errors.New("s3 access_key_id and secret_access_key must be set together"))
	}
	return errors.Join(errs...)
}
