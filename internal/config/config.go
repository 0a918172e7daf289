package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "PROMPTWEAVE"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "promptweave.db"
	defaultLogLevel     = "info"
	defaultCookieName   = "pw_session"
	defaultSessionTTL   = 7 * 24 * time.Hour
	defaultRouterURL    = "https://openrouter.ai/api/v1"
	defaultAppBaseURL   = "http://localhost:3000"
	defaultCORSOrigin   = "http://localhost:3000"
	defaultSMTPPort     = 587
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	CookieName    string
	SessionTTL    time.Duration
	RouterAPIKey  string
	RouterBaseURL string
	AppBaseURL    string
	CORSOrigin    string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	MailFrom      string
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
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_hours", int(defaultSessionTTL.Hours()))
	configViper.SetDefault("router.base_url", defaultRouterURL)
	configViper.SetDefault("app.base_url", defaultAppBaseURL)
	configViper.SetDefault("cors.origin", defaultCORSOrigin)
	configViper.SetDefault("smtp.port", defaultSMTPPort)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		CookieName:    configViper.GetString("auth.cookie_name"),
		SessionTTL:    time.Duration(configViper.GetInt("auth.session_ttl_hours")) * time.Hour,
		RouterAPIKey:  configViper.GetString("router.api_key"),
		RouterBaseURL: configViper.GetString("router.base_url"),
		AppBaseURL:    configViper.GetString("app.base_url"),
		CORSOrigin:    configViper.GetString("cors.origin"),
		SMTPHost:      configViper.GetString("smtp.host"),
		SMTPPort:      configViper.GetInt("smtp.port"),
		SMTPUsername:  configViper.GetString("smtp.username"),
		SMTPPassword:  configViper.GetString("smtp.password"),
		MailFrom:      configViper.GetString("smtp.from"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_hours must be positive")
	}
	return nil
}
