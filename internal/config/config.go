package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PROTEINTRACKER"
	defaultHTTPAddress     = "127.0.0.1:8080"
	defaultDatabasePath    = "proteintracker.db"
	defaultLogLevel        = "info"
	defaultBarcodeBaseURL  = "https://world.openfoodfacts.org"
	defaultAnalysisBaseURL = "https://api.anthropic.com"
)

// AppConfig captures runtime configuration for the tracker service.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	BarcodeBaseURL  string
	AnalysisBaseURL string
	AnalysisModel   string
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
	configViper.SetDefault("barcode.base_url", defaultBarcodeBaseURL)
	configViper.SetDefault("analysis.base_url", defaultAnalysisBaseURL)
	configViper.SetDefault("analysis.model", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		BarcodeBaseURL:  configViper.GetString("barcode.base_url"),
		AnalysisBaseURL: configViper.GetString("analysis.base_url"),
		AnalysisModel:   configViper.GetString("analysis.model"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
