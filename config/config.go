package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"fold-orchestrator/logger"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Root directory holding one sub-directory per job
	OutputPath string `yaml:"output_path"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Optional run ledger
	DatabaseURL string `yaml:"database_url"`

	Log logger.Config `yaml:"log"`

	// Optional S3 mirror of published artifacts
	Mirror MirrorConfig `yaml:"mirror"`

	// Opaque services
	Predictor BackendConfig `yaml:"predictor"`
	Relaxer   BackendConfig `yaml:"relaxer"`

	// Number of job directories processed at the same time
	Concurrency int `yaml:"concurrency"`
}

// MirrorConfig configures uploads of finished jobs to S3
type MirrorConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Enabled reports whether a bucket is configured
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// BackendConfig selects the implementation of an opaque service
type BackendConfig struct {
	Kind    string   `yaml:"kind"`    // simulated | command
	Command []string `yaml:"command"` // argv for the command backend
}

const (
	BackendSimulated = "simulated"
	BackendCommand   = "command"
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		OutputPath: "output",
		ServerPort: "8080",
		Log: logger.Config{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Mirror:      MirrorConfig{Region: "us-east-1"},
		Predictor:   BackendConfig{Kind: BackendSimulated},
		Relaxer:     BackendConfig{Kind: BackendSimulated},
		Concurrency: 1,
	}
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// LoadFile overlays a YAML file on the defaults, then applies environment
// variables. An empty path is the same as Load.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can work with
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	for name, b := range map[string]BackendConfig{"predictor": c.Predictor, "relaxer": c.Relaxer} {
		switch b.Kind {
		case BackendSimulated:
		case BackendCommand:
			if len(b.Command) == 0 {
				return fmt.Errorf("%s backend %q needs a command", name, b.Kind)
			}
		default:
			return fmt.Errorf("unknown %s backend %q", name, b.Kind)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.OutputPath = getEnv("FOLD_OUTPUT_PATH", cfg.OutputPath)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Log.FilePath = file
		cfg.Log.Output = "both"
	}
	cfg.Mirror.Bucket = getEnv("FOLD_MIRROR_BUCKET", cfg.Mirror.Bucket)
	cfg.Mirror.Prefix = getEnv("FOLD_MIRROR_PREFIX", cfg.Mirror.Prefix)
	cfg.Mirror.Region = getEnv("AWS_REGION", cfg.Mirror.Region)
	cfg.Predictor.Kind = getEnv("FOLD_PREDICTOR", cfg.Predictor.Kind)
	if cmd := os.Getenv("FOLD_PREDICTOR_COMMAND"); cmd != "" {
		cfg.Predictor.Command = strings.Fields(cmd)
	}
	cfg.Relaxer.Kind = getEnv("FOLD_RELAXER", cfg.Relaxer.Kind)
	if cmd := os.Getenv("FOLD_RELAXER_COMMAND"); cmd != "" {
		cfg.Relaxer.Command = strings.Fields(cmd)
	}
	if n, err := strconv.Atoi(os.Getenv("FOLD_CONCURRENCY")); err == nil {
		cfg.Concurrency = n
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
