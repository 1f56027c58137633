package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	DB          DBConfig          `yaml:"db"`
	Server      ServerConfig      `yaml:"server"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Calibration CalibrationConfig `yaml:"calibration"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Stream      StreamConfig      `yaml:"stream"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"` // calibration history; 0 keeps everything
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// SensorConfig selects and tunes the eye tracker.
type SensorConfig struct {
	Provider string           `yaml:"provider"` // "mock"
	Window   int              `yaml:"window"`   // smoothing window in samples
	Trace    bool             `yaml:"trace"`    // per-sample debug logging
	Mock     MockSensorConfig `yaml:"mock"`
}

// MockSensorConfig holds settings for the synthetic sensor.
type MockSensorConfig struct {
	SampleInterval   Duration `yaml:"sample_interval"`
	Width            int      `yaml:"width"`
	Height           int      `yaml:"height"`
	DropoutRate      float64  `yaml:"dropout_rate"`
	Jitter           float64  `yaml:"jitter"`
	OrbitRadius      float64  `yaml:"orbit_radius"`
	OrbitPeriod      Duration `yaml:"orbit_period"`
	AverageError     float64  `yaml:"average_error"` // degrees
	RefuseActivation bool     `yaml:"refuse_activation"`
}

// CalibrationConfig holds calibration session settings.
type CalibrationConfig struct {
	SampleDuration Duration `yaml:"sample_duration"`
	MaxRetries     int      `yaml:"max_retries"`
	Grid           int      `yaml:"grid"`   // targets per side
	Margin         float64  `yaml:"margin"` // fraction of the screen left free at the edges
}

// MQTTConfig holds broker settings for publishing frames and results.
type MQTTConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Broker      string   `yaml:"broker"`
	ClientID    string   `yaml:"client_id"`
	TopicPrefix string   `yaml:"topic_prefix"`
	QoS         int      `yaml:"qos"`
	FrameRate   Duration `yaml:"frame_rate"` // minimum interval between frame messages
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
}

// StreamConfig holds websocket streaming settings.
type StreamConfig struct {
	BufferSize int `yaml:"buffer_size"` // per client; slow clients are dropped
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:      "./data/gazelaundry.db",
			Retention: Duration(90 * Day),
		},
		Server: ServerConfig{
			Address: "localhost:1930",
		},
		Sensor: SensorConfig{
			Provider: "mock",
			Window:   3,
			Mock: MockSensorConfig{
				SampleInterval: Duration(33 * time.Millisecond),
				Width:          1920,
				Height:         1080,
				DropoutRate:    0.05,
				Jitter:         12,
				OrbitRadius:    300,
				OrbitPeriod:    Duration(20 * time.Second),
				AverageError:   0.6,
			},
		},
		Calibration: CalibrationConfig{
			SampleDuration: Duration(500 * time.Millisecond),
			MaxRetries:     1,
			Grid:           3,
			Margin:         0.1,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "gazelaundry",
			TopicPrefix: "gazelaundry",
			QoS:         0,
			FrameRate:   Duration(100 * time.Millisecond),
		},
		Stream: StreamConfig{
			BufferSize: 32,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills empty MQTT settings from the environment (and .env in the
// working directory). Values are never written back to disk.
func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	if broker := os.Getenv("GAZE_MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}
	fill(&cfg.MQTT.Username, "GAZE_MQTT_USERNAME")
	fill(&cfg.MQTT.Password, "GAZE_MQTT_PASSWORD")
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Sensor.Window < 1 {
		return fmt.Errorf("invalid sensor.window %d: must be at least 1", c.Sensor.Window)
	}
	if c.Calibration.Grid < 1 {
		return fmt.Errorf("invalid calibration.grid %d: must be at least 1", c.Calibration.Grid)
	}
	if c.Calibration.MaxRetries < 0 {
		return fmt.Errorf("invalid calibration.max_retries %d: must not be negative", c.Calibration.MaxRetries)
	}
	if c.Calibration.Margin < 0 || c.Calibration.Margin >= 0.5 {
		return fmt.Errorf("invalid calibration.margin %.2f: must be in [0, 0.5)", c.Calibration.Margin)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d: must be 0, 1 or 2", c.MQTT.QoS)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# GazeLaundry Configuration
# ------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# MQTT credentials may be set via GAZE_MQTT_USERNAME / GAZE_MQTT_PASSWORD.

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: mock\n${1}provider:"))

	reQoS := regexp.MustCompile(`(?m)^(\s+)qos:`)
	data = reQoS.ReplaceAll(data, []byte("${1}# Options: 0, 1, 2\n${1}qos:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
