package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	DatabaseURL    string `toml:"database_url"`
	LogLevel       string `toml:"log_level"`
	TranscriptsDir string `toml:"transcripts_dir"`
	DatasetDir     string `toml:"dataset_dir"`
	ExamplesDir    string `toml:"examples_dir"`
	BaselineDir    string `toml:"baseline_dir"`
	ReportDir      string `toml:"report_dir"`
	Workers        int    `toml:"workers"`
	ExportLimit    int    `toml:"export_limit"`
	NatsURL        string `toml:"nats_url"`
	NatsToken      string `toml:"nats_token"`
	MetricsPort    int    `toml:"metrics_port"`
}

func defaults() Config {
	return Config{
		LogLevel:       "info",
		TranscriptsDir: "/www/files/call_transcripts",
		DatasetDir:     "/www/files/up_matching_dataset/inputs/ut_to_conv_path",
		ExamplesDir:    "/www/files/up_matching_dataset/inputs/up_to_examples",
		BaselineDir:    "/www/files/up_matching_dataset/outputs/prod",
		ReportDir:      "~/.pathminer/runs",
		Workers:        4,
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// PATHMINER_CONFIG, and the environment, in increasing precedence. A .env file
// in the working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("PATHMINER_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.TranscriptsDir = envStr("TRANSCRIPTS_DIR", cfg.TranscriptsDir)
	cfg.DatasetDir = envStr("DATASET_DIR", cfg.DatasetDir)
	cfg.ExamplesDir = envStr("EXAMPLES_DIR", cfg.ExamplesDir)
	cfg.BaselineDir = envStr("BASELINE_DIR", cfg.BaselineDir)
	cfg.ReportDir = envStr("REPORT_DIR", cfg.ReportDir)
	cfg.Workers = envInt("WORKERS", cfg.Workers)
	cfg.ExportLimit = envInt("EXPORT_LIMIT", cfg.ExportLimit)
	cfg.NatsURL = envStr("NATS_URL", cfg.NatsURL)
	cfg.NatsToken = envStr("NATS_TOKEN", cfg.NatsToken)
	cfg.MetricsPort = envInt("METRICS_PORT", cfg.MetricsPort)

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
