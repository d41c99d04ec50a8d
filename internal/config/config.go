package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Editor  EditorConfig  `yaml:"editor" mapstructure:"editor"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// APIConfig holds the remote backend endpoints.
type APIConfig struct {
	AuthBaseURL string  `yaml:"auth_base_url" mapstructure:"auth_base_url"`
	APIBaseURL  string  `yaml:"api_base_url" mapstructure:"api_base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// Timeout returns the per-request timeout; zero means no client-side timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// StoreConfig configures durable local storage.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SessionConfig configures the session caches.
type SessionConfig struct {
	CustomersTTLMins int `yaml:"customers_ttl_mins" mapstructure:"customers_ttl_mins"`
	BasicInfoTTLMins int `yaml:"basic_info_ttl_mins" mapstructure:"basic_info_ttl_mins"`
}

// CustomersTTL returns the customer list cache lifetime.
func (c SessionConfig) CustomersTTL() time.Duration {
	return time.Duration(c.CustomersTTLMins) * time.Minute
}

// BasicInfoTTL returns the basic-info cache lifetime.
func (c SessionConfig) BasicInfoTTL() time.Duration {
	return time.Duration(c.BasicInfoTTLMins) * time.Minute
}

// EditorConfig configures document rendering.
type EditorConfig struct {
	ShowAllFields  bool   `yaml:"show_all_fields" mapstructure:"show_all_fields"`
	Anonymize      bool   `yaml:"anonymize" mapstructure:"anonymize"`
	CurrencySymbol string `yaml:"currency_symbol" mapstructure:"currency_symbol"`
}

// UploadConfig configures file validation and image preprocessing.
type UploadConfig struct {
	MaxFileMB         int      `yaml:"max_file_mb" mapstructure:"max_file_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
	MaxImageDimension int      `yaml:"max_image_dimension" mapstructure:"max_image_dimension"`
	Contrast          float64  `yaml:"contrast" mapstructure:"contrast"`
	JPEGQuality       int      `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// MaxFileBytes returns the upload size limit in bytes.
func (c UploadConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) << 20
}

// ServerConfig configures the local editor server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and the
// environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back
// to ./config.yaml; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("TAXINTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.auth_base_url", "https://auth.taxesil.example")
	v.SetDefault("api.api_base_url", "https://api.taxesil.example")
	v.SetDefault("api.timeout_secs", 0)
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("store.path", "tax-intake.db")
	v.SetDefault("session.customers_ttl_mins", 60)
	v.SetDefault("session.basic_info_ttl_mins", 10)
	v.SetDefault("editor.show_all_fields", false)
	v.SetDefault("editor.anonymize", false)
	v.SetDefault("editor.currency_symbol", "₪")
	v.SetDefault("upload.max_file_mb", 20)
	v.SetDefault("upload.allowed_extensions", []string{".pdf", ".jpg", ".jpeg", ".png", ".webp"})
	v.SetDefault("upload.max_image_dimension", 2000)
	v.SetDefault("upload.contrast", 1.2)
	v.SetDefault("upload.jpeg_quality", 85)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given mode are present.
// Modes: "client" (any command talking to the backend) and "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "client", "serve":
		if c.API.AuthBaseURL == "" {
			problems = append(problems, "api.auth_base_url is required")
		}
		if c.API.APIBaseURL == "" {
			problems = append(problems, "api.api_base_url is required")
		}
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required")
		}
		if c.Upload.MaxFileMB <= 0 {
			problems = append(problems, "upload.max_file_mb must be positive")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
