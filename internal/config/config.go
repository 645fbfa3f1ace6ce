// Package config provides the explicit configuration passed into the
// pipeline orchestrator at construction. There is no ambient lookup: every
// path and knob lives here, loaded once from the environment.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings, read-only after Load.
type Config struct {
	// GhostscriptPath is the rasterize-and-recompress binary. Resolved via
	// PATH when not absolute.
	GhostscriptPath string

	// TempDir is the parent for per-run scratch directories. Empty selects
	// the system temp dir.
	TempDir string

	// RasterDPI maps image pixels to PDF points (72/DPI points per pixel)
	// and sets the resolution hint for recompression.
	RasterDPI int

	// DecodeWorkers bounds parallel input decoding.
	DecodeWorkers int

	// MaxAttempts bounds the size-targeting quality search.
	MaxAttempts int

	// AttemptTimeout bounds one external tool invocation.
	AttemptTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GhostscriptPath: "gs",
		TempDir:         "",
		RasterDPI:       200,
		DecodeWorkers:   runtime.NumCPU(),
		MaxAttempts:     5,
		AttemptTimeout:  2 * time.Minute,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Load reads configuration from the environment, with a .env file honored
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("PDFGEN_GS_PATH"); v != "" {
		cfg.GhostscriptPath = v
	}
	if v := os.Getenv("PDFGEN_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := os.Getenv("PDFGEN_RASTER_DPI"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse PDFGEN_RASTER_DPI: %w", err)
		}
		cfg.RasterDPI = n
	}
	if v := os.Getenv("PDFGEN_DECODE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse PDFGEN_DECODE_WORKERS: %w", err)
		}
		cfg.DecodeWorkers = n
	}
	if v := os.Getenv("PDFGEN_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse PDFGEN_MAX_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = n
	}
	if v := os.Getenv("PDFGEN_ATTEMPT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse PDFGEN_ATTEMPT_TIMEOUT: %w", err)
		}
		cfg.AttemptTimeout = d
	}
	if v := os.Getenv("PDFGEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PDFGEN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.RasterDPI <= 0 {
		return fmt.Errorf("raster DPI must be positive, got %d", c.RasterDPI)
	}
	if c.DecodeWorkers <= 0 {
		return fmt.Errorf("decode workers must be positive, got %d", c.DecodeWorkers)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %s", c.AttemptTimeout)
	}
	if c.GhostscriptPath == "" {
		return fmt.Errorf("ghostscript path cannot be empty")
	}
	return nil
}
