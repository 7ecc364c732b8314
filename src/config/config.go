package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	JWTSecret          string
	Port               string
	DatabasePath       string
	LogLevel           string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MaxUploadSizeBytes int64

	// Local market data files used to price vests and backfill FX rates.
	StockPricePath string
	ForexRatePath  string
	HolidayPath    string

	// Ticker of the employer stock, used when refreshing prices from Yahoo.
	StockTicker string

	// Security types excluded from the CGT pool, e.g. option grants taxed
	// under a different regime. Matched case-insensitively.
	ExcludedSecurityTypes []string
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found. Relying on OS environment variables and defaults.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "insecure-development-jwt-secret-at-least-32-bytes!")
	if jwtSecret == "insecure-development-jwt-secret-at-least-32-bytes!" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET for production.")
	}

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		JWTSecret:          jwtSecret,
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./sharepool.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),
		RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		StockPricePath: getEnv("STOCK_PRICE_PATH", "data/stock_prices.csv"),
		ForexRatePath:  getEnv("FOREX_RATE_PATH", "data/gbpusd_rates.csv"),
		HolidayPath:    getEnv("HOLIDAY_PATH", "data/us_holidays.json"),

		StockTicker: getEnv("STOCK_TICKER", "ROKU"),

		ExcludedSecurityTypes: splitAndTrim(getEnv("EXCLUDED_SECURITY_TYPES", "")),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Ticker=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.StockTicker)
}

func splitAndTrim(value string) []string {
	var parts []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, fallback.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
