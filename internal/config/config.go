package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr  string
	APIKeys     []string
	CORSOrigins []string
	DataDir     string
	DBPath      string
	Concurrency int
	QueueSize   int
	RateLimit   int

	// Upload gateway. StrictUpload couples completion to upload success and
	// is a deployment-wide choice, never per job.
	UploadURL     string
	UploadAPIKey  string
	UploadTimeout time.Duration
	StrictUpload  bool

	// Reconciliation sweep.
	SweepSpec  string
	StaleAfter time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:   getEnv("CORPUSD_LISTEN_ADDR", ":8080"),
		DataDir:      getEnv("CORPUSD_DATA_DIR", "/data"),
		DBPath:       getEnv("CORPUSD_DB_PATH", "corpusd.db"),
		UploadURL:    getEnv("CORPUSD_UPLOAD_URL", ""),
		UploadAPIKey: getEnv("CORPUSD_UPLOAD_API_KEY", ""),
		SweepSpec:    getEnv("CORPUSD_SWEEP_INTERVAL", "@every 1m"),
	}

	rawKeys := getEnv("CORPUSD_API_KEYS", "")
	if rawKeys == "" {
		return nil, errors.New("CORPUSD_API_KEYS must not be empty")
	}
	for _, k := range strings.Split(rawKeys, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			cfg.APIKeys = append(cfg.APIKeys, k)
		}
	}
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("CORPUSD_API_KEYS contains no valid keys")
	}

	if raw := getEnv("CORPUSD_CORS_ORIGINS", ""); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	var err error
	cfg.Concurrency, err = getEnvInt("CORPUSD_CONCURRENCY", 1)
	if err != nil {
		return nil, fmt.Errorf("CORPUSD_CONCURRENCY: %w", err)
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("CORPUSD_CONCURRENCY must be > 0")
	}

	cfg.QueueSize, err = getEnvInt("CORPUSD_QUEUE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CORPUSD_QUEUE_SIZE: %w", err)
	}

	cfg.RateLimit, err = getEnvInt("CORPUSD_RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("CORPUSD_RATE_LIMIT_RPS: %w", err)
	}

	cfg.UploadTimeout, err = getEnvDuration("CORPUSD_UPLOAD_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CORPUSD_UPLOAD_TIMEOUT: %w", err)
	}

	cfg.StrictUpload, err = getEnvBool("CORPUSD_STRICT_UPLOAD", false)
	if err != nil {
		return nil, fmt.Errorf("CORPUSD_STRICT_UPLOAD: %w", err)
	}
	if cfg.StrictUpload && (cfg.UploadURL == "" || cfg.UploadAPIKey == "") {
		// Allowed, but every job will fail until the gateway is configured.
		fmt.Fprintln(os.Stderr, "warning: CORPUSD_STRICT_UPLOAD is set without upload configuration")
	}

	cfg.StaleAfter, err = getEnvDuration("CORPUSD_STALE_AFTER", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CORPUSD_STALE_AFTER: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", v)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
