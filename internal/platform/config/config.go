package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool

	JWTSecret string
	JWTIssuer string

	RateLimitSpec string
	PosthogAPIKey string

	// Change-order approval escalation thresholds, minor units. Additive:
	// crossing a threshold adds that tier's role on top of the lower ones.
	COFinanceReviewThreshold int64
	COTreasurerThreshold     int64
	COMultisigThreshold      int64

	// Authorization-decision cache.
	AuthCacheTTL  time.Duration
	AuthCacheSize int
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("JWT_ISSUER", "greenledger-backend")
	viper.SetDefault("RATE_LIMIT_SPEC", "100-M")
	viper.SetDefault("POSTHOG_API_KEY", "")
	viper.SetDefault("CO_FINANCE_REVIEW_THRESHOLD", int64(1000000))
	viper.SetDefault("CO_TREASURER_THRESHOLD", int64(5000000))
	viper.SetDefault("CO_MULTISIG_THRESHOLD", int64(25000000))
	viper.SetDefault("AUTH_CACHE_TTL", "5m")
	viper.SetDefault("AUTH_CACHE_SIZE", 4096)

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "a-very-secret-key-should-be-longer-and-random" {
		log.Println("Warning: JWT_SECRET not set. Using default insecure key.")
	}
	cfg.JWTIssuer = viper.GetString("JWT_ISSUER")

	cfg.RateLimitSpec = viper.GetString("RATE_LIMIT_SPEC")
	cfg.PosthogAPIKey = viper.GetString("POSTHOG_API_KEY")

	cfg.COFinanceReviewThreshold = viper.GetInt64("CO_FINANCE_REVIEW_THRESHOLD")
	cfg.COTreasurerThreshold = viper.GetInt64("CO_TREASURER_THRESHOLD")
	cfg.COMultisigThreshold = viper.GetInt64("CO_MULTISIG_THRESHOLD")

	ttlStr := viper.GetString("AUTH_CACHE_TTL")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		log.Printf("Warning: Invalid AUTH_CACHE_TTL (%q). Defaulting to 5m.\n", ttlStr)
		ttl = 5 * time.Minute
	}
	cfg.AuthCacheTTL = ttl
	cfg.AuthCacheSize = viper.GetInt("AUTH_CACHE_SIZE")

	return cfg, nil
}
