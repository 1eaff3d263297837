package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CameraConfig describes one camera in the static topology. Width and
// Height are the source frame dimensions produced by the capture process.
type CameraConfig struct {
	Width  int      `yaml:"width" json:"width"`
	Height int      `yaml:"height" json:"height"`
	FPS    int      `yaml:"fps" json:"fps"`
	Zones  []string `yaml:"zones" json:"zones"`
}

// DetectorConfig describes one detector instance.
type DetectorConfig struct {
	Type   string `yaml:"type" json:"type"`
	Device string `yaml:"device,omitempty" json:"device,omitempty"`
}

// Topology is the camera/detector section of the YAML config file.
type Topology struct {
	Cameras   map[string]CameraConfig   `yaml:"cameras" json:"cameras"`
	Detectors map[string]DetectorConfig `yaml:"detectors" json:"detectors"`
}

// Config holds all runtime settings. The topology is immutable for the
// lifetime of the process; the serving layer never mutates it.
type Config struct {
	Port           int      `json:"port"`
	DatabasePath   string   `json:"database_path"`
	ConfigPath     string   `json:"-"`
	LogDirectory   string   `json:"-"`
	StreamFPS      int      `json:"stream_fps"`
	StreamHeight   int      `json:"stream_height"`
	LivePushMillis int      `json:"live_push_millis"`
	Topology       Topology `json:"topology"`
}

// Load reads settings from the environment (optionally seeded from a .env
// file) and the camera topology from the YAML config file.
func Load() (*Config, error) {
	// missing .env is fine, env vars may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnvAsInt("PORT", 5000),
		DatabasePath:   getEnv("DATABASE_PATH", filepath.Join(".", "frigate.db")),
		ConfigPath:     getEnv("CONFIG_PATH", filepath.Join(".", "config.yml")),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),
		StreamFPS:      getEnvAsInt("STREAM_FPS", 3),
		StreamHeight:   getEnvAsInt("STREAM_HEIGHT", 360),
		LivePushMillis: getEnvAsInt("LIVE_PUSH_MILLIS", 500),
	}

	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg.Topology); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// CameraNames returns the names of all configured cameras.
func (c *Config) CameraNames() []string {
	names := make([]string, 0, len(c.Topology.Cameras))
	for name := range c.Topology.Cameras {
		names = append(names, name)
	}
	return names
}

// DetectorNames returns the names of all configured detector instances.
func (c *Config) DetectorNames() []string {
	names := make([]string, 0, len(c.Topology.Detectors))
	for name := range c.Topology.Detectors {
		names = append(names, name)
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
