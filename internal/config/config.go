package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr        string
	AuthTokenSecret string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	RateLimit RateLimitConfig

	Payme  PaymeConfig
	Click  ClickConfig
	Nasiya NasiyaConfig

	TelegramBotToken string
	TelegramChatID   string
}

// RateLimitConfig throttles the provider-facing callback routes.
// Rate is tokens per second; Burst is the bucket capacity.
type RateLimitConfig struct {
	Enabled       bool
	CallbackRate  int
	CallbackBurst int
}

// PaymeConfig carries the RPC provider credentials. Callbacks arrive as
// JSON-RPC calls authenticated with MerchantLogin/MerchantKey Basic-Auth;
// outbound receipt calls use the same pair against BaseURL.
type PaymeConfig struct {
	BaseURL       string
	CheckoutURL   string
	MerchantID    string
	MerchantLogin string
	MerchantKey   string
	Timeout       int
}

// ClickConfig carries the signed-query provider credentials.
type ClickConfig struct {
	BaseURL        string
	PayURL         string
	ServiceID      string
	MerchantID     string
	MerchantUserID string
	SecretKey      string
	Timeout        int
}

// NasiyaConfig carries the webhook-driven provider credentials. The
// provider pushes every lifecycle phase over Basic-Auth; the merchant
// only builds a signed redirect URL.
type NasiyaConfig struct {
	CheckoutURL string
	Login       string
	Password    string
	SecretKey   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "shafran"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AuthTokenSecret:   strings.TrimSpace(getenv("AUTH_TOKEN_SECRET", "")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "shafran"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 32),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			CallbackRate:  getenvInt("RATE_LIMIT_CALLBACK_RATE", 20),
			CallbackBurst: getenvInt("RATE_LIMIT_CALLBACK_BURST", 40),
		},
		Payme: PaymeConfig{
			BaseURL:       getenv("PAYME_BASE_URL", "https://checkout.paycom.uz/api"),
			CheckoutURL:   getenv("PAYME_CHECKOUT_URL", "https://checkout.paycom.uz"),
			MerchantID:    strings.TrimSpace(getenv("PAYME_MERCHANT_ID", "")),
			MerchantLogin: strings.TrimSpace(getenv("PAYME_MERCHANT_LOGIN", "Paycom")),
			MerchantKey:   strings.TrimSpace(getenv("PAYME_MERCHANT_KEY", "")),
			Timeout:       getenvInt("PAYME_TIMEOUT", 15),
		},
		Click: ClickConfig{
			BaseURL:        getenv("CLICK_BASE_URL", "https://api.click.uz/v2/merchant"),
			PayURL:         getenv("CLICK_PAY_URL", "https://my.click.uz/services/pay"),
			ServiceID:      strings.TrimSpace(getenv("CLICK_SERVICE_ID", "")),
			MerchantID:     strings.TrimSpace(getenv("CLICK_MERCHANT_ID", "")),
			MerchantUserID: strings.TrimSpace(getenv("CLICK_MERCHANT_USER_ID", "")),
			SecretKey:      strings.TrimSpace(getenv("CLICK_SECRET_KEY", "")),
			Timeout:        getenvInt("CLICK_TIMEOUT", 15),
		},
		Nasiya: NasiyaConfig{
			CheckoutURL: getenv("NASIYA_CHECKOUT_URL", "https://checkout.nasiya.uz"),
			Login:       strings.TrimSpace(getenv("NASIYA_LOGIN", "")),
			Password:    strings.TrimSpace(getenv("NASIYA_PASSWORD", "")),
			SecretKey:   strings.TrimSpace(getenv("NASIYA_SECRET_KEY", "")),
		},
		TelegramBotToken: strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
		TelegramChatID:   strings.TrimSpace(getenv("TELEGRAM_CHAT_ID", "")),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
