package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultWorkers         = 2
	defaultPollInterval    = time.Second
	defaultStopTimeout     = 5 * time.Second
	defaultWriteBuffer     = 4 * 1024 * 1024 // frame-sized writes, avoid syscall churn
	defaultCRF             = 20
	defaultSettleDelay     = 2 * time.Second
)

// DefaultExtensions is the set of input file extensions considered video
// files by batch and watch operations. Matching is case-insensitive.
var DefaultExtensions = []string{".avi", ".mkv", ".mp4", ".mov", ".mpg", ".mpeg", ".m2v", ".vob"}

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
	Filters  FiltersConfig  `mapstructure:"filters"`
	Server   ServerConfig   `mapstructure:"server"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DatabaseConfig holds job-store database configuration. The database is an
// optional mirror of queue state; the in-memory registry is authoritative.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds input/output file configuration.
type StorageConfig struct {
	OutputDir  string   `mapstructure:"output_dir"`
	TempDir    string   `mapstructure:"temp_dir"`
	Extensions []string `mapstructure:"extensions"`
}

// QueueConfig holds worker pool configuration.
type QueueConfig struct {
	Workers      int      `mapstructure:"workers"`
	PollInterval Duration `mapstructure:"poll_interval"`
	StopTimeout  Duration `mapstructure:"stop_timeout"`
}

// EncoderConfig holds encoder subprocess configuration.
type EncoderConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // path to ffmpeg (empty = $PATH lookup)
	ProbePath  string `mapstructure:"probe_path"`  // path to ffprobe (empty = $PATH lookup)
	Codec      string `mapstructure:"codec"`       // hevc, av1 (anything else falls back to h264)
	CRF        int    `mapstructure:"crf"`
	Preset     string `mapstructure:"preset"`
	UseGPU     bool   `mapstructure:"use_gpu"`
	GPUDevice  int    `mapstructure:"gpu_device"`
	// OutputPixelFormat is applied on the encoder's output side.
	OutputPixelFormat string `mapstructure:"output_pixel_format"`
	// WriteBuffer sizes the stdin transport buffer so frame-sized writes
	// do not degenerate into per-row syscalls.
	WriteBuffer ByteSize `mapstructure:"write_buffer"`
}

// FiltersConfig holds enhancement filter parameters.
type FiltersConfig struct {
	DeinterlacePreset string  `mapstructure:"deinterlace_preset"` // Fast, Blend
	DenoiseStrength   float64 `mapstructure:"denoise_strength"`
	DenoiseRadius     int     `mapstructure:"denoise_radius"`
	SharpenStrength   float64 `mapstructure:"sharpen_strength"`
	SharpenRadius     int     `mapstructure:"sharpen_radius"`
	DeflickerStrength float64 `mapstructure:"deflicker_strength"`
	DeflickerRadius   int     `mapstructure:"deflicker_radius"`
	AutoWhiteBalance  bool    `mapstructure:"auto_white_balance"`
	AutoContrast      bool    `mapstructure:"auto_contrast"`
	Gamma             float64 `mapstructure:"gamma"`
	CleanupArtifacts  bool    `mapstructure:"cleanup_artifacts"`
	ArtifactStrength  float64 `mapstructure:"artifact_strength"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WatchConfig holds directory watcher configuration.
type WatchConfig struct {
	Dir string `mapstructure:"dir"`
	// SettleDelay is how long a new file must be quiescent before it is
	// enqueued; files still being copied grow during this window.
	SettleDelay Duration `mapstructure:"settle_delay"`
	// RescanCron optionally schedules a periodic full directory scan in
	// addition to filesystem events. 6-field cron expression; empty disables.
	RescanCron string `mapstructure:"rescan_cron"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with RETROSCALE_, using underscores for nesting.
// Example: RETROSCALE_QUEUE_WORKERS=4.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/retroscale")
		v.AddConfigPath("$HOME/.retroscale")
	}

	v.SetEnvPrefix("RETROSCALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing config file is fine - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		// Duration and ByteSize fields parse through their text form.
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This must be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "retroscale.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.output_dir", "./enhanced")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.extensions", DefaultExtensions)

	// Queue defaults
	v.SetDefault("queue.workers", defaultWorkers)
	v.SetDefault("queue.poll_interval", defaultPollInterval.String())
	v.SetDefault("queue.stop_timeout", defaultStopTimeout.String())

	// Encoder defaults
	v.SetDefault("encoder.binary_path", "")
	v.SetDefault("encoder.probe_path", "")
	v.SetDefault("encoder.codec", "hevc")
	v.SetDefault("encoder.crf", defaultCRF)
	v.SetDefault("encoder.preset", "medium")
	v.SetDefault("encoder.use_gpu", false)
	v.SetDefault("encoder.gpu_device", 0)
	v.SetDefault("encoder.output_pixel_format", "yuv420p")
	v.SetDefault("encoder.write_buffer", ByteSize(defaultWriteBuffer).String())

	// Filter defaults
	v.SetDefault("filters.deinterlace_preset", "Fast")
	v.SetDefault("filters.denoise_strength", 1.0)
	v.SetDefault("filters.denoise_radius", 2)
	v.SetDefault("filters.sharpen_strength", 0.3)
	v.SetDefault("filters.sharpen_radius", 1)
	v.SetDefault("filters.deflicker_strength", 0.5)
	v.SetDefault("filters.deflicker_radius", 3)
	v.SetDefault("filters.auto_white_balance", true)
	v.SetDefault("filters.auto_contrast", true)
	v.SetDefault("filters.gamma", 1.0)
	v.SetDefault("filters.cleanup_artifacts", true)
	v.SetDefault("filters.artifact_strength", 0.5)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Watch defaults
	v.SetDefault("watch.dir", "")
	v.SetDefault("watch.settle_delay", defaultSettleDelay.String())
	v.SetDefault("watch.rescan_cron", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if c.Database.Enabled {
		if !validDrivers[c.Database.Driver] {
			return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when database.enabled is true")
		}
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}

	const maxCRF = 51
	if c.Encoder.CRF < 0 || c.Encoder.CRF > maxCRF {
		return fmt.Errorf("encoder.crf must be between 0 and %d", maxCRF)
	}
	if c.Encoder.Preset == "" {
		return fmt.Errorf("encoder.preset is required")
	}
	if c.Encoder.WriteBuffer < 0 {
		return fmt.Errorf("encoder.write_buffer must not be negative")
	}

	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
