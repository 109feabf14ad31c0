// Package config loads service configuration from an optional YAML file with
// APPRAISE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Training TrainingConfig `yaml:"training"`
	Serving  ServingConfig  `yaml:"serving"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"-"` // secrets come from the environment only
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	BundleDir string `yaml:"bundle_dir"`
}

type TrainingConfig struct {
	MinObservations int     `yaml:"min_observations"`
	MinRows         int     `yaml:"min_rows"`
	PriceCeiling    float64 `yaml:"price_ceiling"`
	ScoreFloor      float64 `yaml:"score_floor"`
	Holdout         bool    `yaml:"holdout"`
	Seed            int64   `yaml:"seed"`
}

type ServingConfig struct {
	EchoInputs bool `yaml:"echo_inputs"`
}

type CatalogConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			// BundleDir is derived from the final DataDir in loadFrom, after
			// file and env overrides, unless set explicitly.
			DataDir: defaultDataDir(),
		},
		Training: TrainingConfig{
			MinObservations: 10,
			MinRows:         20,
			PriceCeiling:    1_000_000,
			ScoreFloor:      0.8,
			Seed:            33,
		},
		Catalog: CatalogConfig{
			URL: "https://bringatrailer.com/auctions/",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "appraise")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "appraise-data"
	}
	return filepath.Join(home, ".local", "share", "appraise")
}

// Load reads defaults, then the config file (if one exists), then APPRAISE_*
// environment overrides. The file path comes from $APPRAISE_CONFIG, falling
// back to $XDG_CONFIG_HOME/appraise/config.yaml.
func Load() (Config, error) {
	return loadFrom(configPath())
}

func configPath() string {
	if p := os.Getenv("APPRAISE_CONFIG"); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "appraise", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "appraise", "config.yaml")
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// No file is fine; defaults and env carry the config.
		case err != nil:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Storage.BundleDir == "" {
		cfg.Storage.BundleDir = filepath.Join(cfg.Storage.DataDir, "bundles")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setInt := func(env string, dst *int) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if i, err := strconv.Atoi(raw); err == nil {
			*dst = i
		} else {
			slog.Warn("could not parse integer from env var, using default", "var", env, "value", raw, "error", err)
		}
	}
	setBool := func(env string, dst *bool) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if b, err := strconv.ParseBool(raw); err == nil {
			*dst = b
		} else {
			slog.Warn("could not parse bool from env var, using default", "var", env, "value", raw, "error", err)
		}
	}
	setFloat := func(env string, dst *float64) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = f
		} else {
			slog.Warn("could not parse float from env var, using default", "var", env, "value", raw, "error", err)
		}
	}

	setInt("APPRAISE_SERVER_PORT", &cfg.Server.Port)
	setString("APPRAISE_API_TOKEN", &cfg.Server.Token)
	setString("APPRAISE_DATA_DIR", &cfg.Storage.DataDir)
	setString("APPRAISE_BUNDLE_DIR", &cfg.Storage.BundleDir)
	setInt("APPRAISE_TRAINING_MIN_OBSERVATIONS", &cfg.Training.MinObservations)
	setInt("APPRAISE_TRAINING_MIN_ROWS", &cfg.Training.MinRows)
	setFloat("APPRAISE_TRAINING_PRICE_CEILING", &cfg.Training.PriceCeiling)
	setFloat("APPRAISE_TRAINING_SCORE_FLOOR", &cfg.Training.ScoreFloor)
	setBool("APPRAISE_TRAINING_HOLDOUT", &cfg.Training.Holdout)
	setBool("APPRAISE_SERVING_ECHO_INPUTS", &cfg.Serving.EchoInputs)
	setString("APPRAISE_CATALOG_URL", &cfg.Catalog.URL)
	setString("APPRAISE_LOG_LEVEL", &cfg.Log.Level)
}
