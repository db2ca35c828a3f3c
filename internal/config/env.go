package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "YTDL_WEB_"

// loadEnvFiles loads .env, .env.<ENV> and .env.local from dir when present.
// Variables already set in the process environment win over .env, the more
// specific files override it.
func loadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if fileExists(base) {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("failed to load %s: %w", base, err)
		}
	}

	if env := os.Getenv("ENV"); env != "" {
		envFile := filepath.Join(dir, ".env."+env)
		if fileExists(envFile) {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	local := filepath.Join(dir, ".env.local")
	if fileExists(local) {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("failed to load %s: %w", local, err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type envBinding struct {
	name  string
	apply func(string) error
}

func (c *Config) envBindings() []envBinding {
	return []envBinding{
		{envPrefix + "ADDR", setString(&c.Addr)},
		{envPrefix + "OUTPUT_DIR", setString(&c.OutputDir)},
		{envPrefix + "ENGINE", setString(&c.Engine)},
		{envPrefix + "YTDLP_PATH", setString(&c.YtdlpPath)},
		{envPrefix + "YTDLP_INSTALL", setBool(&c.YtdlpInstall)},
		{envPrefix + "PROBE_TIMEOUT", setDuration(&c.ProbeTimeout)},
		{envPrefix + "HTTP_TIMEOUT", setDuration(&c.HTTPTimeout)},
		{envPrefix + "MAX_WORKERS", setInt(&c.MaxWorkers)},
		{envPrefix + "MAX_QUEUED", setInt(&c.MaxQueued)},
		{envPrefix + "JOB_COMPLETED_TTL", setDuration(&c.JobCompletedTTL)},
		{envPrefix + "JOB_ERRORED_TTL", setDuration(&c.JobErroredTTL)},
		{envPrefix + "JOB_CLEANUP_INTERVAL", setDuration(&c.JobCleanupInterval)},
		{envPrefix + "STRICT_NOT_FOUND", setBool(&c.StrictNotFound)},
		{envPrefix + "LOG_LEVEL", setString(&c.LogLevel)},
		{envPrefix + "LOG_FORMAT", setString(&c.LogFormat)},
		{"SESSION_SECRET", setString(&c.SessionSecret)},
		{envPrefix + "CATALOG_PATH", setString(&c.CatalogPath)},
		{envPrefix + "TAG_AUDIO", setBool(&c.TagAudio)},
		{envPrefix + "S3_BUCKET", setString(&c.S3.Bucket)},
		{envPrefix + "S3_REGION", setString(&c.S3.Region)},
		{envPrefix + "S3_PREFIX", setString(&c.S3.Prefix)},
		{envPrefix + "S3_ENDPOINT", setString(&c.S3.Endpoint)},
		{envPrefix + "S3_ACCESS_KEY_ID", setString(&c.S3.AccessKeyID)},
		{envPrefix + "S3_SECRET_ACCESS_KEY", setString(&c.S3.SecretAccessKey)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range c.envBindings() {
		value, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := b.apply(value); err != nil {
			return fmt.Errorf("invalid %s: %w", b.name, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = parsed
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = parsed
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = parsed
		return nil
	}
}
