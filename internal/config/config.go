// Package config loads and validates the runtime configuration. Invalid
// configuration is fatal at startup: it indicates a misconfigured
// deployment, never a runtime condition.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type VideoConfig struct {
	// Source is a video file path, stream URL, or numeric camera index.
	Source string `mapstructure:"source"`
	// FPS overrides the container's reported frame rate when positive.
	FPS float64 `mapstructure:"fps"`
}

type DetectorConfig struct {
	ModelPath           string  `mapstructure:"model_path"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// MinConfidence is the floor for a crop to compete as a best sample.
	MinConfidence float64 `mapstructure:"min_confidence"`
	NMSThreshold  float64 `mapstructure:"nms_threshold"`
	InputWidth    int     `mapstructure:"input_width"`
	InputHeight   int     `mapstructure:"input_height"`
	MultiAngle    bool    `mapstructure:"multi_angle"`
}

type ConsolidateConfig struct {
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`
}

type TrackConfig struct {
	MatchOverlap  float64 `mapstructure:"match_overlap"`
	MissTolerance int     `mapstructure:"miss_tolerance"`
}

type QualityConfig struct {
	MinScore     float64 `mapstructure:"min_score"`
	DropBelowMin bool    `mapstructure:"drop_below_min"`
}

type SpeedConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	DistanceMeters float64       `mapstructure:"distance_m"`
	MinElapsed     time.Duration `mapstructure:"min_elapsed"`
	MaxSpeedKMH    float64       `mapstructure:"max_kmh"`
}

type OCRConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type StorageConfig struct {
	DSN        string        `mapstructure:"dsn"`
	QueueSize  int           `mapstructure:"queue_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	SpillPath  string        `mapstructure:"spill_path"`
}

type HTTPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Video       VideoConfig       `mapstructure:"video"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Consolidate ConsolidateConfig `mapstructure:"consolidate"`
	Track       TrackConfig       `mapstructure:"track"`
	Quality     QualityConfig     `mapstructure:"quality"`
	Speed       SpeedConfig       `mapstructure:"speed"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	Storage     StorageConfig     `mapstructure:"storage"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default still get one so environment
	// overrides bind to them.
	v.SetDefault("video.source", "")
	v.SetDefault("video.fps", 0.0)

	v.SetDefault("detector.model_path", "models/plate.onnx")
	v.SetDefault("detector.confidence_threshold", 0.5)
	v.SetDefault("detector.min_confidence", 0.55)
	v.SetDefault("detector.nms_threshold", 0.45)
	v.SetDefault("detector.input_width", 640)
	v.SetDefault("detector.input_height", 640)
	v.SetDefault("detector.multi_angle", false)

	v.SetDefault("consolidate.overlap_threshold", 0.45)

	v.SetDefault("track.match_overlap", 0.3)
	v.SetDefault("track.miss_tolerance", 5)

	v.SetDefault("quality.min_score", 100.0)
	v.SetDefault("quality.drop_below_min", false)

	v.SetDefault("speed.enabled", false)
	v.SetDefault("speed.distance_m", 15.0)
	v.SetDefault("speed.min_elapsed", "200ms")
	v.SetDefault("speed.max_kmh", 200.0)

	v.SetDefault("ocr.enabled", false)

	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.queue_size", 64)
	v.SetDefault("storage.max_retries", 5)
	v.SetDefault("storage.backoff", "200ms")
	v.SetDefault("storage.spill_path", "platetrack.spill.jsonl")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")

	v.SetDefault("log.level", "info")
}

// Load reads the configuration file (optional) plus PLATETRACK_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PLATETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for name, val := range map[string]float64{
		"detector.confidence_threshold": c.Detector.ConfidenceThreshold,
		"detector.min_confidence":       c.Detector.MinConfidence,
		"detector.nms_threshold":        c.Detector.NMSThreshold,
		"consolidate.overlap_threshold": c.Consolidate.OverlapThreshold,
		"track.match_overlap":           c.Track.MatchOverlap,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, val)
		}
	}

	if c.Track.MissTolerance < 0 {
		return fmt.Errorf("track.miss_tolerance must be non-negative, got %d", c.Track.MissTolerance)
	}
	if c.Quality.MinScore < 0 {
		return fmt.Errorf("quality.min_score must be non-negative, got %v", c.Quality.MinScore)
	}

	if c.Speed.Enabled {
		if c.Speed.DistanceMeters <= 0 {
			return fmt.Errorf("speed.distance_m must be positive when speed estimation is enabled, got %v", c.Speed.DistanceMeters)
		}
		if c.Speed.MinElapsed < 0 {
			return fmt.Errorf("speed.min_elapsed must be non-negative, got %v", c.Speed.MinElapsed)
		}
	}

	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Storage.QueueSize <= 0 {
		return fmt.Errorf("storage.queue_size must be positive, got %d", c.Storage.QueueSize)
	}
	if c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage.max_retries must be non-negative, got %d", c.Storage.MaxRetries)
	}

	if c.HTTP.Enabled && c.HTTP.JWTSecret == "" {
		return fmt.Errorf("http.jwt_secret is required when the API is enabled")
	}

	return nil
}
