// Package config loads priora configuration from a config file, the
// environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/priora/internal/difficulty"
	"github.com/fentz26/priora/internal/logging"
	"github.com/fentz26/priora/internal/mcdm"
	"github.com/fentz26/priora/internal/retry"
	"github.com/fentz26/priora/internal/similarity"
	"github.com/fentz26/priora/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PRIORA_SERVER_LISTEN.
const EnvPrefix = "PRIORA"

// Config is the complete priora configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Scoring    mcdm.Weights     `mapstructure:"scoring"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Logging    logging.Config   `mapstructure:"logging"`
}

// ServerConfig controls the HTTP daemon.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	// JWTSecret enables bearer authentication when non-empty.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StoreConfig selects the task record backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// EmbeddingConfig points at the text embedding service. An empty URL
// disables history lookups and every prediction is a cold start.
type EmbeddingConfig struct {
	URL        string        `mapstructure:"url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig points at the difficulty classification service. An empty
// URL leaves the resolver without a model.
type ClassifierConfig struct {
	URL                 string        `mapstructure:"url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	Fallback            int           `mapstructure:"fallback"`
}

// CacheConfig configures the Redis embedding cache. An empty address
// disables caching.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// EstimatorConfig tunes similarity search and batch concurrency.
type EstimatorConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	TopK      int     `mapstructure:"top_k"`
	Workers   int     `mapstructure:"workers"`
}

// RetryConfig configures retries against the embedding and classifier services.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// RetryPolicy converts c into a retry.Config with the default retry predicate.
func (c RetryConfig) RetryPolicy() *retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = c.MaxAttempts
	rc.InitialDelay = c.InitialDelay
	rc.MaxDelay = c.MaxDelay
	return rc
}

// Default returns the built-in configuration.
func Default() *Config {
	rc := retry.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Listen:       "127.0.0.1:7480",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			DSN:    filepath.Join(DataDir(), "priora.db"),
		},
		Embedding: EmbeddingConfig{
			Model:      "all-MiniLM-L6-v2",
			Dimensions: 384,
			Timeout:    10 * time.Second,
		},
		Classifier: ClassifierConfig{
			Timeout:             5 * time.Second,
			ConfidenceThreshold: difficulty.DefaultThreshold,
			Fallback:            difficulty.DefaultFallback,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Estimator: EstimatorConfig{
			Threshold: similarity.DefaultThreshold,
			TopK:      similarity.DefaultTopK,
			Workers:   4,
		},
		Scoring: mcdm.DefaultWeights(),
		Retry: RetryConfig{
			MaxAttempts:  rc.MaxAttempts,
			InitialDelay: rc.InitialDelay,
			MaxDelay:     rc.MaxDelay,
		},
		Logging: logging.Config{Level: "info", Format: "text"},
	}
}

// SetDefaults registers the defaults with viper so that every key is known
// to environment overrides.
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers the defaults with v.
func SetDefaultsOn(v *viper.Viper) {
	for key, value := range flatten("", Default().asMap()) {
		v.SetDefault(key, value)
	}
}

// Setup points v at the config file and the environment. An empty cfgFile
// searches the standard locations for config.yaml. A .env file in the
// working directory is loaded into the process environment first.
func Setup(v *viper.Viper, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	SetDefaultsOn(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load reads the configuration from the global viper instance and validates it.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "priora")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".priora"
	}
	return filepath.Join(home, ".config", "priora")
}

// ConfigFile returns the path of the default config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory holding the default SQLite database.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".priora"
	}
	return filepath.Join(home, ".priora")
}

// Marshal renders cfg as YAML with durations in their string form.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg.asMap())
}

// WriteFile writes cfg to path, creating parent directories. It refuses to
// overwrite an existing file unless force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) asMap() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"listen":        c.Server.Listen,
			"read_timeout":  c.Server.ReadTimeout.String(),
			"write_timeout": c.Server.WriteTimeout.String(),
			"cors_origins":  c.Server.CORSOrigins,
			"jwt_secret":    c.Server.JWTSecret,
		},
		"store": map[string]interface{}{
			"driver": c.Store.Driver,
			"dsn":    c.Store.DSN,
		},
		"embedding": map[string]interface{}{
			"url":        c.Embedding.URL,
			"model":      c.Embedding.Model,
			"dimensions": c.Embedding.Dimensions,
			"timeout":    c.Embedding.Timeout.String(),
		},
		"classifier": map[string]interface{}{
			"url":                  c.Classifier.URL,
			"timeout":              c.Classifier.Timeout.String(),
			"confidence_threshold": c.Classifier.ConfidenceThreshold,
			"fallback":             c.Classifier.Fallback,
		},
		"cache": map[string]interface{}{
			"redis_addr":     c.Cache.RedisAddr,
			"redis_password": c.Cache.RedisPassword,
			"redis_db":       c.Cache.RedisDB,
			"ttl":            c.Cache.TTL.String(),
		},
		"estimator": map[string]interface{}{
			"threshold": c.Estimator.Threshold,
			"top_k":     c.Estimator.TopK,
			"workers":   c.Estimator.Workers,
		},
		"scoring": map[string]interface{}{
			"urgency_weight":    c.Scoring.Urgency,
			"impact_weight":     c.Scoring.Impact,
			"difficulty_weight": c.Scoring.Difficulty,
		},
		"retry": map[string]interface{}{
			"max_attempts":  c.Retry.MaxAttempts,
			"initial_delay": c.Retry.InitialDelay.String(),
			"max_delay":     c.Retry.MaxDelay.String(),
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
	}
}

func flatten(prefix string, m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}
