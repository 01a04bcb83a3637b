package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Gateway      GatewayConfig
	Invoicer     InvoicerConfig
	Rates        RatesConfig
	SMTP         SMTPConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// GatewayConfig holds credentials for the card payment gateway.
type GatewayConfig struct {
	BaseURL       string `default:"https://api.cardpay.example" usage:"Card gateway API base URL" flag:"gateway-base-url"`
	APIKey        string `usage:"Card gateway secret key (STORE_GATEWAY_API_KEY)" flag:"gateway-api-key"`
	WebhookSecret string `usage:"Card gateway webhook signing secret (STORE_GATEWAY_WEBHOOK_SECRET)" flag:"gateway-webhook-secret"`
}

// InvoicerConfig holds credentials for the invoice payment provider.
type InvoicerConfig struct {
	BaseURL string `default:"https://api.invoicer.example" usage:"Invoice provider API base URL" flag:"invoicer-base-url"`
	APIKey  string `usage:"Invoice provider API key (STORE_INVOICER_API_KEY)" flag:"invoicer-api-key"`
}

// RatesConfig controls the exchange rate feed.
type RatesConfig struct {
	BaseURL string        `default:"" usage:"Exchange rate feed base URL; empty uses built-in static rates" flag:"rates-base-url"`
	Refresh time.Duration `default:"1h" usage:"Exchange rate refresh interval" flag:"rates-refresh"`
}

// SMTPConfig controls seller email notifications. When Addr is empty, emails
// are logged instead of sent.
type SMTPConfig struct {
	Addr     string `default:"" usage:"SMTP relay address (host:port); empty logs emails instead" flag:"smtp-addr"`
	From     string `default:"orders@nordmarkt.example" usage:"From address for notification emails" flag:"smtp-from"`
	Username string `usage:"SMTP username (STORE_SMTP_USERNAME)" flag:"smtp-username"`
	Password string `usage:"SMTP password (STORE_SMTP_PASSWORD)" flag:"smtp-password"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
