package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken                     string
	MySQLDSN                     string
	OpenAIAPIKey                 string
	OpenAIModel                  string
	RequestTimeout               time.Duration
	FreeDailyMessages            int
	CreditsPerMessage            int
	CreditsPerPhoto              int
	StorefrontBaseURL            string
	TelegramPaymentProviderToken string
	PaymentCurrency              string
	CronSecret                   string
	WebhookSecret                string
	APIListenAddr                string
	S3Endpoint                   string
	S3Region                     string
	S3AccessKey                  string
	S3SecretKey                  string
	S3Bucket                     string
	S3PublicBaseURL              string
	S3UsePathStyle               bool
	S3Prefix                     string
}

// Load reads configuration from environment variables, applying sane defaults.
// Missing required secrets fail the load so the process never starts half
// configured.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		FreeDailyMessages: getInt("FREE_DAILY_MESSAGES", 3),
		CreditsPerMessage: getInt("CREDITS_PER_MESSAGE", 1),
		CreditsPerPhoto:   getInt("CREDITS_PER_PHOTO", 10),
		StorefrontBaseURL: normalizeBaseURL(getEnv("STOREFRONT_BASE_URL", "https://itsnadchos.com")),
		PaymentCurrency:   getEnv("PAYMENT_CURRENCY", "USD"),
		APIListenAddr:     getEnv("API_LISTEN_ADDR", ":8080"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "photos"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.CronSecret = os.Getenv("CRON_SECRET")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	cfg.TelegramPaymentProviderToken = os.Getenv("TELEGRAM_PAYMENT_PROVIDER_TOKEN")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if cfg.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// normalizeBaseURL trims trailing slashes and forces https when no scheme is
// present, so token URLs concatenate cleanly.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(strings.TrimRight(raw, "/"))
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.Scheme == "" {
		return "https://" + raw
	}
	return raw
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine in containers.
	return nil
}
