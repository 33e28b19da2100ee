// Package config provides configuration loading and validation for the resume intake service.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration
type Config struct {
	WorkDir  string         `yaml:"work_dir" validate:"required"`
	Server   ServerConfig   `yaml:"server"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Convert  ConvertConfig  `yaml:"convert"`
	Extract  ExtractConfig  `yaml:"extract"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" validate:"min=1"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int      `yaml:"rate_limit_burst" validate:"gte=0"`
	UploadPerHour  int      `yaml:"upload_per_hour" validate:"gte=0"`
}

// TasksConfig configures the in-process task registry
type TasksConfig struct {
	Retention    time.Duration `yaml:"retention" validate:"min=1s"`
	ReapInterval time.Duration `yaml:"reap_interval" validate:"gte=0"`
}

// PipelineConfig configures the background worker pool
type PipelineConfig struct {
	Workers        int           `yaml:"workers" validate:"min=1,max=64"`
	QueueSize      int           `yaml:"queue_size" validate:"min=1"`
	ProcessTimeout time.Duration `yaml:"process_timeout" validate:"min=1s"`
}

// ConvertConfig configures the DOC/DOCX to PDF converter chain
type ConvertConfig struct {
	Backends []string      `yaml:"backends" validate:"dive,oneof=office unoconv render"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=1s"`
}

// ExtractConfig configures rasterization and text extraction
type ExtractConfig struct {
	DPI int `yaml:"dpi" validate:"min=72,max=1200"`
}

// OracleConfig configures the extraction model
type OracleConfig struct {
	Provider      string        `yaml:"provider" validate:"oneof=gemini openai"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url" validate:"omitempty,url"`
	MaxPages      int           `yaml:"max_pages" validate:"min=1,max=50"`
	TextTimeout   time.Duration `yaml:"text_timeout" validate:"min=1s"`
	VisualTimeout time.Duration `yaml:"visual_timeout" validate:"min=1s"`
}

// DatabaseConfig selects the history store
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres sqlite"`
	URL    string `yaml:"url" validate:"required"`
}

// AuthConfig enables bearer-token ownership when a secret is set
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	ExpirationHours int    `yaml:"expiration_hours" validate:"min=1"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// defaultModels is the model used for each provider when none is configured
var defaultModels = map[string]string{
	"gemini": "gemini-2.5-flash",
	"openai": "gpt-4o",
}

// Default returns the built-in configuration. The oracle model is left empty
// and resolved for the final provider in Load.
func Default() *Config {
	return &Config{
		WorkDir: filepath.Join(os.TempDir(), "resume-intake"),
		Server: ServerConfig{
			Port:           8080,
			MaxUploadBytes: 20 << 20,
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			UploadPerHour:  60,
		},
		Tasks: TasksConfig{
			Retention:    time.Hour,
			ReapInterval: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			QueueSize:      64,
			ProcessTimeout: 10 * time.Minute,
		},
		Convert: ConvertConfig{
			Backends: []string{"office", "unoconv", "render"},
			Timeout:  90 * time.Second,
		},
		Extract: ExtractConfig{
			DPI: 300,
		},
		Oracle: OracleConfig{
			Provider:      "gemini",
			MaxPages:      10,
			TextTimeout:   120 * time.Second,
			VisualTimeout: 240 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "resume_intake.db",
		},
		Auth: AuthConfig{
			ExpirationHours: 24,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.applyEnv()
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = defaultModels[cfg.Oracle.Provider]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}
	if c.Oracle.VisualTimeout < c.Oracle.TextTimeout {
		return fmt.Errorf("config error: oracle.visual_timeout must not be shorter than oracle.text_timeout")
	}
	return nil
}

// AuthEnabled reports whether bearer tokens are required on the resume API
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func (c *Config) applyEnv() {
	c.WorkDir = getEnv("RESUME_WORK_DIR", c.WorkDir)
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.MaxUploadBytes = int64(getEnvAsInt("RESUME_MAX_UPLOAD_BYTES", int(c.Server.MaxUploadBytes)))
	if origins := os.Getenv("RESUME_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Tasks.Retention = getEnvAsDuration("RESUME_TASK_RETENTION", c.Tasks.Retention)
	c.Pipeline.Workers = getEnvAsInt("RESUME_WORKERS", c.Pipeline.Workers)
	if backends := os.Getenv("RESUME_CONVERTERS"); backends != "" {
		c.Convert.Backends = splitList(backends)
	}
	c.Extract.DPI = getEnvAsInt("RESUME_DPI", c.Extract.DPI)

	c.Oracle.Provider = getEnv("RESUME_ORACLE_PROVIDER", c.Oracle.Provider)
	c.Oracle.Model = getEnv("RESUME_ORACLE_MODEL", c.Oracle.Model)
	c.Oracle.BaseURL = getEnv("OPENAI_BASE_URL", c.Oracle.BaseURL)
	if c.Oracle.APIKey == "" {
		switch c.Oracle.Provider {
		case "openai":
			c.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			c.Database.Driver = "postgres"
		}
	}
	c.Database.Driver = getEnv("RESUME_DB_DRIVER", c.Database.Driver)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.ExpirationHours = getEnvAsInt("JWT_EXPIRATION_HOURS", c.Auth.ExpirationHours)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
