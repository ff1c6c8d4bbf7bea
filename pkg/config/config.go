// Package config loads bountyscope settings from an optional YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. BOUNTYSCOPE_OUTPUT_DIR
const EnvPrefix = "BOUNTYSCOPE"

// Config holds the application configuration
type Config struct {
	// General configuration
	OutputDir string        `mapstructure:"output_dir"`
	DataDir   string        `mapstructure:"data_dir"`
	LogDir    string        `mapstructure:"log_dir"`
	Debug     bool          `mapstructure:"debug"`
	Logging   LoggingConfig `mapstructure:"logging"`

	HTTP    HTTPConfig    `mapstructure:"http"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Archive ArchiveConfig `mapstructure:"archive"`

	// Platform API configuration
	HackerOne PlatformConfig `mapstructure:"hackerone"`
	Bugcrowd  PlatformConfig `mapstructure:"bugcrowd"`
	YesWeHack PlatformConfig `mapstructure:"yeswehack"`
	Intigriti PlatformConfig `mapstructure:"intigriti"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	EnableColors bool   `mapstructure:"enable_colors"`
	EnableFile   bool   `mapstructure:"enable_file"`
	MaxFileSize  int    `mapstructure:"max_file_size_mb"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAge       int    `mapstructure:"max_age_days"`
	Compress     bool   `mapstructure:"compress"`
}

// HTTPConfig holds the request and retry policy shared by every platform client
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// MetricsConfig holds the Prometheus textfile settings
type MetricsConfig struct {
	// Textfile is written after every fetch when set
	Textfile string `mapstructure:"textfile"`
}

// ArchiveConfig controls the SQLite run history
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PlatformConfig holds the settings of one platform. Zero values keep the
// built-in platform table's setting.
type PlatformConfig struct {
	APIUrl       string        `mapstructure:"api_url"`
	Username     string        `mapstructure:"username"`
	Token        string        `mapstructure:"token"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	RPS          float64       `mapstructure:"rps"`
}

// Credentials returns the secrets configured for the platform
func (p PlatformConfig) Credentials() models.Credentials {
	return models.Credentials{Username: p.Username, Token: p.Token}
}

// credentialEnv lists the historical variables each credential key is
// also read from, in addition to the BOUNTYSCOPE_ prefixed form.
var credentialEnv = map[string]string{
	"hackerone.username": "HACKERONE_USERNAME",
	"hackerone.token":    "HACKERONE_TOKEN",
	"intigriti.token":    "INTIGRITI_TOKEN",
}

// Platform returns the configuration of the named platform
func (c *Config) Platform(name string) (PlatformConfig, bool) {
	switch name {
	case "hackerone":
		return c.HackerOne, true
	case "bugcrowd":
		return c.Bugcrowd, true
	case "yeswehack":
		return c.YesWeHack, true
	case "intigriti":
		return c.Intigriti, true
	}
	return PlatformConfig{}, false
}

// Load reads the configuration. When path is empty the default file
// (~/.bountyscope/config.yaml) is used if it exists; an explicit path must
// exist. Environment variables override both.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v, configDir)

	configFile := path
	if configFile == "" {
		configFile = filepath.Join(configDir, "config.yaml")
		if !utils.FileExists(configFile) {
			configFile = ""
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// Set environment variable prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range credentialEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Unmarshal the configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Empty strings in the file fall back to the defaults
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(configDir, "data")
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(configDir, "logs")
	}
	if cfg.Logging.Level == "" {
		if cfg.Debug {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("output_dir", "output")
	v.SetDefault("data_dir", filepath.Join(configDir, "data"))
	v.SetDefault("log_dir", filepath.Join(configDir, "logs"))
	v.SetDefault("debug", false)

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.enable_colors", true)
	v.SetDefault("logging.enable_file", false)
	v.SetDefault("logging.max_file_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("http.timeout", 60*time.Second)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.initial_delay", time.Second)
	v.SetDefault("http.max_delay", 60*time.Second)

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("archive.enabled", true)

	// Registering every platform key lets AutomaticEnv reach them
	for _, p := range []string{"hackerone", "bugcrowd", "yeswehack", "intigriti"} {
		v.SetDefault(p+".api_url", "")
		v.SetDefault(p+".username", "")
		v.SetDefault(p+".token", "")
		v.SetDefault(p+".request_delay", time.Duration(0))
		v.SetDefault(p+".rps", 0.0)
	}
}

// DefaultPath returns ~/.bountyscope/config.yaml
func DefaultPath() (string, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".bountyscope"), nil
}

// WriteDefault writes a commented default configuration to path. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if utils.FileExists(path) && !force {
		return fmt.Errorf("config file already exists: %s", path)
	}

	// The file may hold API tokens
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

const defaultConfig = `# bountyscope configuration
# Every key can be overridden with BOUNTYSCOPE_<KEY>, e.g. BOUNTYSCOPE_HTTP_TIMEOUT=30s

# Artifacts: <output_dir>/<platform>.json and <output_dir>/brief/<platform>.json
output_dir: "output"
# Run archive (SQLite); defaults to ~/.bountyscope/data
data_dir: ""
log_dir: ""
debug: false

logging:
  level: "info"
  format: "text"
  enable_colors: true
  enable_file: false
  max_file_size_mb: 100
  max_backups: 5
  max_age_days: 30
  compress: true

# Applies to every platform client
http:
  timeout: 60s
  max_attempts: 5
  initial_delay: 1s
  max_delay: 60s

metrics:
  # node-exporter textfile written after each fetch
  textfile: ""

archive:
  enabled: true

# HACKERONE_USERNAME and HACKERONE_TOKEN are read as well
hackerone:
  api_url: ""
  username: ""
  token: ""

bugcrowd:
  api_url: ""
  request_delay: 250ms

yeswehack:
  api_url: ""

# INTIGRITI_TOKEN is read as well
intigriti:
  api_url: ""
  token: ""
`
