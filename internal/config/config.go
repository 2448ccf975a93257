package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"strconv"
	"time"

	domain "atomsense/domain/sensitivity"
	"atomsense/internal/errors"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Database    DatabaseConfig
	ChemService ChemServiceConfig
	Server      ServerConfig
	Analysis    domain.Config
	LogLevel    string
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory run store.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// Enabled reports whether a database was configured
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// ChemServiceConfig holds the chemistry toolkit service settings
type ChemServiceConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ServerConfig holds web server settings. MaxWorkers caps the parallel
// sampling a single API request may ask for.
type ServerConfig struct {
	Port       string
	GinMode    string
	MaxWorkers int
}

// DefaultMaxWorkers is the per-request parallel sampling cap
const DefaultMaxWorkers = 8

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:     getEnvOrDefault("DATABASE_URL", ""),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		ChemService: ChemServiceConfig{
			URL:     getEnvOrDefault("CHEM_SERVICE_URL", ""),
			APIKey:  getEnvOrDefault("CHEM_SERVICE_API_KEY", ""),
			Model:   getEnvOrDefault("CHEM_SERVICE_MODEL", ""),
			Timeout: getEnvDurationOrDefault("CHEM_SERVICE_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			Port:       getEnvOrDefault("PORT", "8080"),
			GinMode:    getEnvOrDefault("GIN_MODE", "debug"),
			MaxWorkers: getEnvIntOrDefault("SENS_MAX_WORKERS", DefaultMaxWorkers),
		},
		Analysis: loadAnalysisConfig(),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadAnalysisConfig() domain.Config {
	def := domain.DefaultConfig()
	return domain.Config{
		Radius:          getEnvIntOrDefault("SENS_RADIUS", def.Radius),
		N:               getEnvIntOrDefault("SENS_N", def.N),
		BottomQuantile:  getEnvFloatOrDefault("SENS_BOTTOM_QUANTILE", def.BottomQuantile),
		TopQuantile:     getEnvFloatOrDefault("SENS_TOP_QUANTILE", def.TopQuantile),
		NBins:           getEnvIntOrDefault("SENS_NBINS", def.NBins),
		ColorScale:      getEnvOrDefault("SENS_COLORSCALE", def.ColorScale),
		MinValidSamples: getEnvIntOrDefault("SENS_MIN_VALID_SAMPLES", def.MinValidSamples),
		QuantileMethod:  domain.QuantileMethod(getEnvOrDefault("SENS_QUANTILE_METHOD", string(def.QuantileMethod))),
		Workers:         getEnvIntOrDefault("SENS_WORKERS", def.Workers),
	}
}

func validateConfig(config *Config) error {
	if config.ChemService.URL == "" {
		return errors.ConfigInvalid("CHEM_SERVICE_URL is required")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT must not be empty")
	}
	if config.Server.MaxWorkers < 1 {
		return errors.ConfigInvalid("SENS_MAX_WORKERS must be at least 1")
	}
	return config.Analysis.Validate()
}

// LoadAnalysisFile overlays the YAML analysis options at path on base. Keys
// missing from the file keep their base value.
func LoadAnalysisFile(path string, base domain.Config) (domain.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "read analysis config %s", path)
	}

	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return base, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "parse analysis config %s", path))
	}
	if err := cfg.Validate(); err != nil {
		return base, errors.Wrapf(err, "analysis config %s", path)
	}
	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
