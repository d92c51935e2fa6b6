package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Upload     UploadConfig     `yaml:"upload"`
	Cache      CacheConfig      `yaml:"cache"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, sqlite
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

type StorageConfig struct {
	Backend  string      `yaml:"backend"` // local, minio, gcs
	LocalDir string      `yaml:"local_dir"`
	Minio    MinioConfig `yaml:"minio"`
	GCS      GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type AnalysisConfig struct {
	Engine   string        `yaml:"engine"` // http, gemini, mock
	APIURL   string        `yaml:"api_url"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
	Gemini   GeminiConfig  `yaml:"gemini"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type DispatcherConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxBytes          int64    `yaml:"max_bytes"`
}

type CacheConfig struct {
	StatusSize int           `yaml:"status_size"`
	StatusTTL  time.Duration `yaml:"status_ttl"`
}

// Load reads the YAML file at path, overlays values from a .env file and the
// process environment, and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Storage.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Analysis.Engine, "ANALYSIS_ENGINE")
	setString(&c.Analysis.APIURL, "ANALYSIS_API_URL")
	setString(&c.Analysis.APIToken, "ANALYSIS_API_TOKEN")
	setString(&c.Analysis.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Database.Driver == "" {
		// A postgres URL without an explicit driver is the common deployment.
		if strings.HasPrefix(c.Database.DSN, "postgres") {
			c.Database.Driver = "postgres"
		} else {
			c.Database.Driver = "sqlite"
		}
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "legal_ai.db"
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./uploads"
	}
	if c.Storage.Minio.Region == "" {
		c.Storage.Minio.Region = "us-east-1"
	}
	if c.Analysis.Engine == "" {
		c.Analysis.Engine = "mock"
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 60 * time.Second
	}
	if c.Analysis.Gemini.Model == "" {
		c.Analysis.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = 4
	}
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = 64
	}
	if c.Dispatcher.ShutdownTimeout == 0 {
		c.Dispatcher.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = []string{".pdf"}
	}
	for i, ext := range c.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Upload.AllowedExtensions[i] = ext
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 20 << 20
	}
	if c.Cache.StatusSize == 0 {
		c.Cache.StatusSize = 1024
	}
	if c.Cache.StatusTTL == 0 {
		c.Cache.StatusTTL = 10 * time.Minute
	}
}

// Validate checks that the selected backends have the settings they need.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %q", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("minio storage requires endpoint and bucket")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("gcs storage requires bucket")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	switch c.Analysis.Engine {
	case "mock":
	case "http":
		if c.Analysis.APIURL == "" {
			return fmt.Errorf("http analysis engine requires api_url")
		}
	case "gemini":
		if c.Analysis.Gemini.APIKey == "" {
			return fmt.Errorf("gemini analysis engine requires an api key")
		}
	default:
		return fmt.Errorf("unsupported analysis engine %q", c.Analysis.Engine)
	}

	if c.Dispatcher.Workers < 1 {
		return fmt.Errorf("dispatcher workers must be positive, got %d", c.Dispatcher.Workers)
	}
	if c.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload max_bytes must not be negative")
	}
	return nil
}

// IsAllowedExtension reports whether ext (with leading dot, any case) may be uploaded.
func (u *UploadConfig) IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range u.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
