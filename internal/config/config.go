package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth (Google)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OAuth (Mezon)。未設定の場合はMezonログインを無効化する。
	MezonClientID     string
	MezonClientSecret string
	MezonRedirectURL  string

	// Session
	SessionMaxAge int

	// Object Storage
	StorageURL        string
	StorageServiceKey string
	MusicBucket       string
	SignedURLTTL      time.Duration

	// Payment
	PaymentReceiverID   string
	PaymentReceiverName string
	PaymentSessionTTL   time.Duration

	// Rate Limit
	RateLimitGeneral  int
	RateLimitPurchase int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.StorageURL = os.Getenv("STORAGE_URL")
	if cfg.StorageURL == "" {
		missing = append(missing, "STORAGE_URL")
	}

	cfg.StorageServiceKey = os.Getenv("STORAGE_SERVICE_KEY")
	if cfg.StorageServiceKey == "" {
		missing = append(missing, "STORAGE_SERVICE_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Mezonは任意。3変数が揃っている場合のみ有効になる。
	cfg.MezonClientID = os.Getenv("MEZON_CLIENT_ID")
	cfg.MezonClientSecret = os.Getenv("MEZON_CLIENT_SECRET")
	cfg.MezonRedirectURL = os.Getenv("MEZON_REDIRECT_URL")

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800) // 7日
	cfg.MusicBucket = getEnvString("MUSIC_BUCKET", "music")
	cfg.SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", 600*time.Second)
	cfg.PaymentReceiverID = getEnvString("PAYMENT_RECEIVER_ID", "mezon-bot")
	cfg.PaymentReceiverName = getEnvString("PAYMENT_RECEIVER_NAME", "Otoichi")
	cfg.PaymentSessionTTL = getEnvDuration("PAYMENT_SESSION_TTL", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPurchase = getEnvInt("RATE_LIMIT_PURCHASE", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// MezonEnabled はMezon OAuthの設定が揃っているかを返す。
func (c *Config) MezonEnabled() bool {
	return c.MezonClientID != "" && c.MezonClientSecret != "" && c.MezonRedirectURL != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
