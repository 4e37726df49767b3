package config

import (
	"time"

	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"log.level":                     "LOG_LEVEL",
	"log.format":                    "LOG_FORMAT",
	"database.driver":               "DB_DRIVER",
	"database.host":                 "DB_HOST",
	"database.port":                 "DB_PORT",
	"database.user":                 "DB_USER",
	"database.password":             "DB_PASSWORD",
	"database.name":                 "DB_NAME",
	"database.path":                 "DB_PATH",
	"database.seed":                 "SEED_BOOKS",
	"library.port":                  "LIBRARY_PORT",
	"assistant.port":                "ASSISTANT_PORT",
	"gateway.port":                  "GATEWAY_PORT",
	"gateway.library_service_url":   "LIBRARY_SERVICE_URL",
	"gateway.assistant_service_url": "ASSISTANT_SERVICE_URL",
	"gateway.timeout":               "GATEWAY_TIMEOUT",
	"model.base_url":                "MODEL_BASE_URL",
	"model.api_key":                 "OPENROUTER_API_KEY",
	"model.model":                   "MODEL_ID",
	"model.temperature":             "MODEL_TEMPERATURE",
	"model.max_tokens":              "MODEL_MAX_TOKENS",
	"client.gateway_url":            "LIBRATRACK_URL",
	"client.history_path":           "LIBRATRACK_HISTORY",
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "postgres",
			Port:     "5432",
			User:     "program",
			Password: "test",
			Name:     "libratrack",
			Path:     "libratrack.db",
			Seed:     true,
		},
		Library:   ServiceConfig{Port: "8060"},
		Assistant: ServiceConfig{Port: "8090"},
		Gateway: GatewayConfig{
			Port:                "8080",
			LibraryServiceURL:   "http://localhost:8060",
			AssistantServiceURL: "http://localhost:8090",
			Timeout:             60 * time.Second,
			MaxFailures:         5,
			OpenTimeout:         30 * time.Second,
		},
		Model: ModelConfig{
			BaseURL:     "https://openrouter.ai/api/v1/",
			APIKey:      "",
			Model:       "google/gemini-2.0-flash-exp:free",
			Temperature: Float(0.7),
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
			Referer:     "https://libratrack.local",
			Title:       "Book Library Assistant",
		},
		Client: ClientConfig{
			GatewayURL:  "http://localhost:8080",
			HistoryPath: "$HOME/.libratrack/history.db",
			Timeout:     90 * time.Second,
		},
	}
}

// Float returns a pointer to v, for optional numeric settings.
func Float(v float64) *float64 {
	return &v
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.seed", d.Database.Seed)

	v.SetDefault("library.port", d.Library.Port)
	v.SetDefault("assistant.port", d.Assistant.Port)

	v.SetDefault("gateway.port", d.Gateway.Port)
	v.SetDefault("gateway.library_service_url", d.Gateway.LibraryServiceURL)
	v.SetDefault("gateway.assistant_service_url", d.Gateway.AssistantServiceURL)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("gateway.max_failures", d.Gateway.MaxFailures)
	v.SetDefault("gateway.open_timeout", d.Gateway.OpenTimeout)

	v.SetDefault("model.base_url", d.Model.BaseURL)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.model", d.Model.Model)
	v.SetDefault("model.temperature", *d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.timeout", d.Model.Timeout)
	v.SetDefault("model.referer", d.Model.Referer)
	v.SetDefault("model.title", d.Model.Title)

	v.SetDefault("client.gateway_url", d.Client.GatewayURL)
	v.SetDefault("client.history_path", d.Client.HistoryPath)
	v.SetDefault("client.timeout", d.Client.Timeout)
}
