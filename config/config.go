package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the on-disk configuration shared by the predictor service and the trainer.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type ModelConfig struct {
	Path string `yaml:"path"`
}

// TrainingConfig holds the trainer input and the boosting hyper-parameters.
type TrainingConfig struct {
	DataPath       string  `yaml:"data_path"`
	Encoding       string  `yaml:"encoding"`
	NEstimators    int     `yaml:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth"`
	LearningRate   float64 `yaml:"learning_rate"`
	Lambda         float64 `yaml:"lambda"`
	MinChildWeight float64 `yaml:"min_child_weight"`
}

// DatabaseConfig enables the SQLite training/prediction log when Path is set.
type DatabaseConfig struct {
	Path           string `yaml:"path"`
	LogPredictions bool   `yaml:"log_predictions"`
}

type CacheConfig struct {
	Size int `yaml:"size"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:    "0.0.0.0",
			Port:    5001,
			Timeout: 30 * time.Second,
		},
		Model: ModelConfig{
			Path: "model.pkl",
		},
		Training: TrainingConfig{
			DataPath:       "ocorrencias.csv",
			Encoding:       "utf-8",
			NEstimators:    100,
			MaxDepth:       4,
			LearningRate:   0.1,
			Lambda:         1,
			MinChildWeight: 1,
		},
		Cache: CacheConfig{
			Size: 1024,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Training.NEstimators <= 0 {
		return errors.New("training.n_estimators must be positive")
	}
	if c.Training.MaxDepth <= 0 {
		return errors.New("training.max_depth must be positive")
	}
	if c.Training.LearningRate <= 0 {
		return errors.New("training.learning_rate must be positive")
	}
	if c.Training.Lambda < 0 || c.Training.MinChildWeight < 0 {
		return errors.New("training.lambda and training.min_child_weight must not be negative")
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	return nil
}

// Addr is the host:port the predictor binds to.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}
