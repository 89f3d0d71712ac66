package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"homedash/internal/models"
)

// Config holds application configuration
type Config struct {
	// Server settings
	ListenAddr  string   `json:"listen_addr"`
	Debug       bool     `json:"debug"`
	LogLevel    string   `json:"log_level"`
	CORSOrigins []string `json:"cors_origins"`

	// Directories
	DataDirectory     string `json:"data_directory"`
	SettingsDirectory string `json:"settings_directory"`

	// PortfolioFile is relative to DataDirectory so it goes through storage
	PortfolioFile string `json:"portfolio_file"`

	// Simulation defaults
	PathCount    int     `json:"path_count"`
	HorizonYears float64 `json:"horizon_years"`
	BucketCount  int     `json:"bucket_count"`

	// Cron schedule for re-running the stored portfolio; empty disables it
	RefreshSchedule string `json:"refresh_schedule"`

	// Unlocks encrypted storage at start-up
	Password string `json:"-"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	// Get working directory
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	sim := models.DefaultSimulationConfig()
	return &Config{
		ListenAddr:        ":8080",
		Debug:             false,
		LogLevel:          "info",
		CORSOrigins:       []string{"*"},
		DataDirectory:     filepath.Join(wd, "data"),
		SettingsDirectory: filepath.Join(wd, "data", "settings"),
		PortfolioFile:     filepath.Join("settings", "portfolio.json"),
		PathCount:         sim.PathCount,
		HorizonYears:      sim.HorizonYears,
		BucketCount:       40,
		RefreshSchedule:   "",
	}
}

// Load loads configuration from .env and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := DefaultConfig()

	// Override with environment variables
	cfg.ListenAddr = getEnv("DASH_LISTEN_ADDR", cfg.ListenAddr)
	cfg.Debug = getEnvAsBool("DASH_DEBUG", cfg.Debug)
	cfg.LogLevel = getEnv("DASH_LOG_LEVEL", cfg.LogLevel)
	if dataDir := os.Getenv("DASH_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
		cfg.SettingsDirectory = filepath.Join(dataDir, "settings")
	}
	cfg.PathCount = getEnvAsInt("DASH_PATH_COUNT", cfg.PathCount)
	cfg.HorizonYears = getEnvAsFloat("DASH_HORIZON_YEARS", cfg.HorizonYears)
	cfg.BucketCount = getEnvAsInt("DASH_BUCKET_COUNT", cfg.BucketCount)
	cfg.RefreshSchedule = getEnv("DASH_REFRESH_SCHEDULE", cfg.RefreshSchedule)
	if origins := os.Getenv("DASH_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.Password = os.Getenv("DASH_PASSWORD")

	if cfg.Debug && os.Getenv("DASH_LOG_LEVEL") == "" {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure directories exist
	cfg.ensureDirectories()

	return cfg, nil
}

// Validate checks that simulation defaults are usable
func (c *Config) Validate() error {
	if c.DataDirectory == "" {
		return fmt.Errorf("DASH_DATA_DIR is required")
	}
	if c.PathCount < 1 || c.PathCount > models.MaxPathCount {
		return fmt.Errorf("DASH_PATH_COUNT must be between 1 and %d, got %d", models.MaxPathCount, c.PathCount)
	}
	if !(c.HorizonYears > 0) || c.HorizonYears > models.MaxHorizonYears {
		return fmt.Errorf("DASH_HORIZON_YEARS must be positive and at most %g, got %v", models.MaxHorizonYears, c.HorizonYears)
	}
	if c.BucketCount < 1 {
		return fmt.Errorf("DASH_BUCKET_COUNT must be at least 1, got %d", c.BucketCount)
	}
	return nil
}

// SimulationConfig returns the configured simulation defaults
func (c *Config) SimulationConfig() models.SimulationConfig {
	return models.SimulationConfig{
		PathCount:    c.PathCount,
		HorizonYears: c.HorizonYears,
	}
}

// ensureDirectories creates required directories if they don't exist
func (c *Config) ensureDirectories() {
	dirs := []string{
		c.DataDirectory,
		c.SettingsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Could not create directory")
		}
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
