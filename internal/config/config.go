package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort                = "8080"
	defaultSiteBaseURL         = "https://nimbuschat.dev"
	defaultModel               = "google/gemini-2.5-flash-preview-05-20"
	defaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1"
	defaultBillingBaseURL      = "https://api.polar.sh"
	defaultUploadDir           = "/tmp/nimbuschat-uploads"
	defaultGenerateTimeoutSecs = 150
)

type Config struct {
	Port                   string
	Environment            string
	SiteBaseURL            string
	AllowedOrigins         []string
	IdentityWebhookSecret  string
	SessionJWTSecret       string
	DatabaseURL            string
	DatabaseAuthToken      string
	DefaultModel           string
	OpenRouterAPIKey       string
	OpenRouterBaseURL      string
	BillingAccessToken     string
	BillingBaseURL         string
	GCSBucket              string
	GCSUploadPrefix        string
	LocalUploadDir         string
	GenerateTimeoutSeconds int
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// StreamURL is the public URL the streaming helper consumes for a given
// stream identifier.
func (c Config) StreamURL(streamID string) string {
	return fmt.Sprintf("%s/stream?streamId=%s", strings.TrimRight(c.SiteBaseURL, "/"), streamID)
}

func (c Config) GenerateTimeout() time.Duration {
	if c.GenerateTimeoutSeconds <= 0 {
		return time.Duration(defaultGenerateTimeoutSecs) * time.Second
	}
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

func Load() (Config, error) {
	cfg := Config{
		Port:                   envOrDefault("PORT", defaultPort),
		Environment:            envOrDefault("APP_ENV", "development"),
		SiteBaseURL:            envOrDefault("SITE_BASE_URL", defaultSiteBaseURL),
		IdentityWebhookSecret:  strings.TrimSpace(os.Getenv("IDENTITY_WEBHOOK_SECRET")),
		SessionJWTSecret:       strings.TrimSpace(os.Getenv("SESSION_JWT_SECRET")),
		DatabaseURL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken:      strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
		DefaultModel:           envOrDefault("DEFAULT_MODEL", defaultModel),
		OpenRouterAPIKey:       strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterBaseURL:      envOrDefault("OPENROUTER_BASE_URL", defaultOpenRouterBaseURL),
		BillingAccessToken:     strings.TrimSpace(os.Getenv("BILLING_ACCESS_TOKEN")),
		BillingBaseURL:         envOrDefault("BILLING_BASE_URL", defaultBillingBaseURL),
		GCSBucket:              strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCSUploadPrefix:        envOrDefault("GCS_UPLOAD_PREFIX", "uploads"),
		LocalUploadDir:         envOrDefault("LOCAL_UPLOAD_DIR", defaultUploadDir),
		GenerateTimeoutSeconds: intOrDefault("GENERATE_TIMEOUT_SECONDS", defaultGenerateTimeoutSecs),
	}

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", cfg.SiteBaseURL+",http://localhost:5173,http://localhost:4173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}
	if cfg.IdentityWebhookSecret == "" {
		return Config{}, errors.New("IDENTITY_WEBHOOK_SECRET is required")
	}
	if cfg.SessionJWTSecret == "" {
		return Config{}, errors.New("SESSION_JWT_SECRET is required")
	}
	if cfg.GenerateTimeoutSeconds <= 0 {
		return Config{}, errors.New("GENERATE_TIMEOUT_SECONDS must be > 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
