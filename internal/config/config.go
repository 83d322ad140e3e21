package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ModelPath       string `yaml:"model_path"`
	MetadataPath    string `yaml:"metadata_path"`
	OnnxLibraryPath string `yaml:"onnxruntime_lib"`
	PoolSize        int    `yaml:"pool_size"`
	AcquireTimeout  int    `yaml:"acquire_timeout_ms"` // Milliseconds to wait for a free model session
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	MaxImagePixels  int64  `yaml:"max_image_pixels"` // 0 disables the check
	ReadTimeout     int    `yaml:"read_timeout_s"`
	WriteTimeout    int    `yaml:"write_timeout_s"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	LogDirectory    string `yaml:"log_dir"`
	CORSOrigin      string `yaml:"cors_origin"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ModelPath:      filepath.Join("models", "head-alexnet-split-layer-1.onnx"),
		MetadataPath:   filepath.Join("models", "model_metadata.json"),
		PoolSize:       1,
		AcquireTimeout: 30000,
		MaxUploadBytes: 32 << 20,
		MaxImagePixels: 178956970,
		ReadTimeout:    60,
		WriteTimeout:   60,
		LogLevel:       "debug",
		LogFormat:      "text",
		CORSOrigin:     "*",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and finally the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnvAsInt("PORT", c.Port)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.MetadataPath = getEnv("METADATA_PATH", c.MetadataPath)
	c.OnnxLibraryPath = getEnv("ONNXRUNTIME_LIB", c.OnnxLibraryPath)
	c.PoolSize = getEnvAsInt("POOL_SIZE", c.PoolSize)
	c.AcquireTimeout = getEnvAsInt("ACQUIRE_TIMEOUT_MS", c.AcquireTimeout)
	c.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.MaxImagePixels = getEnvAsInt64("MAX_IMAGE_PIXELS", c.MaxImagePixels)
	c.ReadTimeout = getEnvAsInt("READ_TIMEOUT_S", c.ReadTimeout)
	c.WriteTimeout = getEnvAsInt("WRITE_TIMEOUT_S", c.WriteTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.CORSOrigin = getEnv("CORS_ORIGIN", c.CORSOrigin)
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("max image pixels must not be negative, got %d", c.MaxImagePixels)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("acquire timeout must not be negative, got %d", c.AcquireTimeout)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("read/write timeouts must not be negative, got %d/%d", c.ReadTimeout, c.WriteTimeout)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) AcquireTimeoutDuration() time.Duration {
	return time.Duration(c.AcquireTimeout) * time.Millisecond
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
