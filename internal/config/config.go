package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultBaseURL is the root of the NOAA CPC precipitation archive.
const DefaultBaseURL = "https://ftp.cpc.ncep.noaa.gov/precip/"

// Config holds operational settings, populated from environment variables.
// Per-run inputs (directories, dates, output file) come from command line flags.
type Config struct {
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	// CPC archive download configuration.
	BaseURL            string
	DownloadTimeout    time.Duration
	DownloadMaxRetries int

	MinCoverage float64

	// Optional progress notifications.
	KafkaBrokers []string
	KafkaTopic   string
}

// KafkaEnabled reports whether step notifications should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	downloadTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("DOWNLOAD_TIMEOUT", "2m"))
	if err != nil || downloadTimeout <= 0 {
		return nil, errors.New("invalid DOWNLOAD_TIMEOUT")
	}

	maxRetries, err := strconv.Atoi(sharedcfg.EnvOrDefault("DOWNLOAD_MAX_RETRIES", "3"))
	if err != nil || maxRetries < 0 {
		return nil, errors.New("invalid DOWNLOAD_MAX_RETRIES: must be a non-negative integer")
	}

	minCoverage, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MONTHLY_MIN_COVERAGE", "0.75"), 64)
	if err != nil || minCoverage < 0 || minCoverage > 1 {
		return nil, errors.New("invalid MONTHLY_MIN_COVERAGE: must be between 0 and 1")
	}

	baseURL := sharedcfg.EnvOrDefault("CMORPH_BASE_URL", DefaultBaseURL)
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid CMORPH_BASE_URL %q", baseURL)
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
		ShutdownTimeout:    shutdownTimeout,
		BaseURL:            baseURL,
		DownloadTimeout:    downloadTimeout,
		DownloadMaxRetries: maxRetries,
		MinCoverage:        minCoverage,
		KafkaBrokers:       brokers,
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "cmorph-ingest"),
	}

	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}
