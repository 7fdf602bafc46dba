package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env         string
	Addr        string
	PublicURL   *url.URL
	FrontendURL string
	DBDSN       string
	LogLevel    string

	SessionSecret string
	SessionTTL    time.Duration

	SMTP SMTPConfig

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	AppleServiceID     string

	AssistantBaseURL string
	AssistantAPIKey  string
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	TLSMode   string
}

func Load() (Config, error) {
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:           getenv("APP_ENV"),
		Addr:          getenv("APP_ADDR"),
		DBDSN:         getenv("APP_DB_DSN"),
		LogLevel:      getenv("APP_LOG_LEVEL"),
		SessionSecret: getenv("APP_SESSION_SECRET"),
		FrontendURL:   strings.TrimRight(getenv("APP_FRONTEND_URL"), "/"),

		GoogleClientID:     getenv("APP_GOOGLE_CLIENT_ID"),
		GoogleClientSecret: getenv("APP_GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  getenv("APP_GOOGLE_REDIRECT_URL"),
		AppleServiceID:     getenv("APP_APPLE_SERVICE_ID"),

		AssistantBaseURL: strings.TrimRight(getenv("APP_ASSISTANT_BASE_URL"), "/"),
		AssistantAPIKey:  getenv("APP_ASSISTANT_API_KEY"),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:5173"
	}
	if cfg.AssistantBaseURL == "" {
		cfg.AssistantBaseURL = "http://localhost/v1"
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := url.Parse(publicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_PUBLIC_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_PUBLIC_URL: scheme must be http or https")
		}
		cfg.PublicURL = parsed
	}

	ttlRaw := getenv("APP_SESSION_TTL")
	if ttlRaw == "" {
		cfg.SessionTTL = 30 * time.Minute
	} else {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_SESSION_TTL: %w", err)
		}
		if ttl <= 0 {
			return Config{}, errors.New("APP_SESSION_TTL: must be > 0")
		}
		cfg.SessionTTL = ttl
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	smtp, err := loadSMTP(getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.SMTP = smtp

	if (cfg.GoogleClientID == "") != (cfg.GoogleClientSecret == "") {
		return Config{}, errors.New("APP_GOOGLE_CLIENT_ID and APP_GOOGLE_CLIENT_SECRET: must be set together")
	}

	if cfg.IsProd() {
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.SessionSecret) < 32 {
			return Config{}, errors.New("APP_SESSION_SECRET: must be at least 32 bytes in prod")
		}
	}

	return cfg, nil
}

func loadSMTP(getenv func(string) string) (SMTPConfig, error) {
	smtp := SMTPConfig{
		Host:      getenv("APP_SMTP_HOST"),
		Username:  getenv("APP_SMTP_USERNAME"),
		Password:  getenv("APP_SMTP_PASSWORD"),
		FromEmail: strings.TrimSpace(strings.ToLower(getenv("APP_SMTP_FROM_EMAIL"))),
		FromName:  strings.TrimSpace(getenv("APP_SMTP_FROM_NAME")),
		TLSMode:   getenv("APP_SMTP_TLS_MODE"),
	}

	portRaw := getenv("APP_SMTP_PORT")
	if portRaw == "" {
		smtp.Port = 587
	} else {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 || port > 65535 {
			return SMTPConfig{}, errors.New("APP_SMTP_PORT: must be a valid port")
		}
		smtp.Port = port
	}

	switch smtp.TLSMode {
	case "", "starttls", "tls", "none":
	default:
		return SMTPConfig{}, errors.New("APP_SMTP_TLS_MODE: must be one of starttls, tls, none")
	}

	if smtp.Host != "" && smtp.FromEmail == "" {
		return SMTPConfig{}, errors.New("APP_SMTP_FROM_EMAIL: required when APP_SMTP_HOST is set")
	}

	return smtp, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) CookieSecure() bool {
	if c.PublicURL != nil {
		return c.PublicURL.Scheme == "https"
	}
	return c.IsProd()
}

func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c Config) MailEnabled() bool { return c.SMTP.Host != "" }
