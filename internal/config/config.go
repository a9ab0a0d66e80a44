package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                     = "PARLEY"
	defaultHTTPAddress            = "0.0.0.0:8080"
	defaultDatabasePath           = "parley.db"
	defaultLogLevel               = "info"
	defaultSessionIssuer          = "parley"
	defaultDeleteCommentThreshold = 10
	defaultFloodMaxCount          = 5
	defaultFloodWindowSeconds     = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabasePath           string
	LogLevel               string
	SessionSigningKey      string
	SessionIssuer          string
	SpamEnabled            bool
	SpamKeywords           []string
	DeleteCommentThreshold int64
	FloodEnabled           bool
	FloodMaxCount          int
	FloodWindow            time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("spam.enabled", true)
	configViper.SetDefault("spam.keywords", []string{})
	configViper.SetDefault("spam.delete_comment_threshold", defaultDeleteCommentThreshold)
	configViper.SetDefault("flood.enabled", true)
	configViper.SetDefault("flood.max_count", defaultFloodMaxCount)
	configViper.SetDefault("flood.window_seconds", defaultFloodWindowSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabasePath:           configViper.GetString("database.path"),
		LogLevel:               configViper.GetString("log.level"),
		SessionSigningKey:      configViper.GetString("session.signing_secret"),
		SessionIssuer:          configViper.GetString("session.issuer"),
		SpamEnabled:            configViper.GetBool("spam.enabled"),
		SpamKeywords:           configViper.GetStringSlice("spam.keywords"),
		DeleteCommentThreshold: configViper.GetInt64("spam.delete_comment_threshold"),
		FloodEnabled:           configViper.GetBool("flood.enabled"),
		FloodMaxCount:          configViper.GetInt("flood.max_count"),
		FloodWindow:            time.Duration(configViper.GetInt("flood.window_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.DeleteCommentThreshold <= 0 {
		return fmt.Errorf("spam.delete_comment_threshold must be positive")
	}
	return nil
}
