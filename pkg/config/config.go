package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig      `mapstructure:"log"`
	Database  DatabaseConfig `mapstructure:"database"`
	Library   ServiceConfig  `mapstructure:"library"`
	Assistant ServiceConfig  `mapstructure:"assistant"`
	Gateway   GatewayConfig  `mapstructure:"gateway"`
	Model     ModelConfig    `mapstructure:"model"`
	Client    ClientConfig   `mapstructure:"client"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres or sqlite
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"` // sqlite file
	Seed     bool   `mapstructure:"seed"`
}

type ServiceConfig struct {
	Port string `mapstructure:"port"`
}

type GatewayConfig struct {
	Port                string        `mapstructure:"port"`
	LibraryServiceURL   string        `mapstructure:"library_service_url"`
	AssistantServiceURL string        `mapstructure:"assistant_service_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxFailures         int           `mapstructure:"max_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

type ModelConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature *float64      `mapstructure:"temperature"` // nil leaves it to the host
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Referer     string        `mapstructure:"referer"`
	Title       string        `mapstructure:"title"`
}

type ClientConfig struct {
	GatewayURL  string        `mapstructure:"gateway_url"`
	HistoryPath string        `mapstructure:"history_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

// ResolvedAPIKey expands ${ENV_VAR} references in the configured key.
func (m ModelConfig) ResolvedAPIKey() string {
	return ResolveEnvVars(m.APIKey)
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config.
// An empty cfgFile falls back to LIBRATRACK_CONFIG, then ./libratrack.yaml and $HOME/.libratrack.
func NewManager(cfgFile string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.initViper(cfgFile); err != nil {
		return nil, err
	}
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	return m, nil
}

// Load is a convenience wrapper for callers that do not need hot reload.
func Load(cfgFile string) (*Config, error) {
	m, err := NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	return m.Get(), nil
}

func (m *Manager) initViper(cfgFile string) error {
	v := m.v
	setDefaults(v)

	// Env names match the ones the services were deployed with.
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if cfgFile == "" {
		cfgFile = os.Getenv("LIBRATRACK_CONFIG")
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("libratrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.libratrack")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func (m *Manager) load() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ConfigFileUsed reports the file the config was read from, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// WatchConfig reloads the config file on change. No-op without a config file.
func (m *Manager) WatchConfig() {
	if m.v.ConfigFileUsed() == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.reload()
	})
	m.v.WatchConfig()
}

func (m *Manager) reload() {
	cfg, err := m.load()
	if err != nil {
		return
	}

	m.mu.Lock()
	m.config = cfg
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
