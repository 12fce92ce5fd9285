package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type GatewayConfig struct {
	BaseURL string
	AppKey  string
	Secret  string
}

// Enabled reports whether enough is configured to talk to the gateway.
func (g GatewayConfig) Enabled() bool {
	return g.BaseURL != "" && g.Secret != ""
}

type Config struct {
	Port            string
	Env             string
	LogLevel        string
	JWTSecret       string
	AllowedOrigin   string
	PublicBaseURL   string // Base for gateway callback URLs
	ShutdownTimeout time.Duration
	// Storage
	StorageDriver    string
	SeedProductsFile string
	// DB Config
	DBUrl             string
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnIdleTime time.Duration
	// Intent store
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	IntentTTL     time.Duration
	// Notifications
	KafkaBrokers      []string
	KafkaOrderTopic   string
	KafkaLoyaltyTopic string
	// Payments
	ShippingCharge int64 // minor units
	GatewayTimeout time.Duration
	BKash          GatewayConfig
	Nagad          GatewayConfig
	// R2 Storage (receipts)
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string
	R2UploadTimeout   time.Duration
	// Cache
	CacheEnumsTTL time.Duration
	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() *Config {
	// 1. Check if a specific config file is requested via env var
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Warning: Failed to load config file '%s': %v", configFile, err)
		} else {
			log.Printf("Loaded configuration from %s", configFile)
		}
	} else {
		// 2. Default fallback: Try loading .env (standard local dev)
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading it, relying on system env vars")
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("CRITICAL: %v", err)
	}
	if cfg.JWTSecret == "default_secret_CHANGE_ME" {
		log.Println("WARNING: Using default JWT secret. Setting up for failure in production.")
	}
	return cfg
}

// FromEnv reads the configuration from the process environment without
// validating it.
func FromEnv() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSecret:       getEnv("JWT_SECRET", "default_secret_CHANGE_ME"),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		SeedProductsFile: getEnv("SEED_PRODUCTS_FILE", ""),

		DBUrl:             getEnv("DB_DSN", ""),
		DBMaxConns:        getInt32Env("DB_MAX_CONNS", 50),
		DBMinConns:        getInt32Env("DB_MIN_CONNS", 10),
		DBMaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", time.Minute*15),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		IntentTTL:     getDurationEnv("INTENT_TTL", 24*time.Hour),

		KafkaBrokers:      getListEnv("KAFKA_BROKERS"),
		KafkaOrderTopic:   getEnv("KAFKA_ORDER_TOPIC", "storefront.order-events"),
		KafkaLoyaltyTopic: getEnv("KAFKA_LOYALTY_TOPIC", "storefront.loyalty-accruals"),

		ShippingCharge: getInt64Env("SHIPPING_CHARGE", 100),
		GatewayTimeout: getDurationEnv("GATEWAY_TIMEOUT", 15*time.Second),
		BKash: GatewayConfig{
			BaseURL: getEnv("BKASH_BASE_URL", ""),
			AppKey:  getEnv("BKASH_APP_KEY", ""),
			Secret:  getEnv("BKASH_SECRET", ""),
		},
		Nagad: GatewayConfig{
			BaseURL: getEnv("NAGAD_BASE_URL", ""),
			AppKey:  getEnv("NAGAD_APP_KEY", ""),
			Secret:  getEnv("NAGAD_SECRET", ""),
		},

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		R2UploadTimeout:   getDurationEnv("R2_UPLOAD_TIMEOUT", 30*time.Second),

		CacheEnumsTTL: getDurationEnv("CACHE_ENUMS_TTL", time.Hour),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),
	}
}

// ReceiptsEnabled reports whether R2 credentials are present.
func (c *Config) ReceiptsEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DBUrl == "" {
			errs = append(errs, errors.New("DB_DSN is required when STORAGE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMemory, StoragePostgres, c.StorageDriver))
	}

	if c.ShippingCharge <= 0 {
		errs = append(errs, errors.New("SHIPPING_CHARGE must be greater than 0"))
	}
	if c.IntentTTL <= 0 {
		errs = append(errs, errors.New("INTENT_TTL must be positive"))
	}
	if c.BKash.BaseURL != "" && c.BKash.Secret == "" {
		errs = append(errs, errors.New("BKASH_SECRET is required when BKASH_BASE_URL is set"))
	}
	if c.Nagad.BaseURL != "" && c.Nagad.Secret == "" {
		errs = append(errs, errors.New("NAGAD_SECRET is required when NAGAD_BASE_URL is set"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using fallback", key)
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s, using fallback", key)
	}
	return fallback
}

func getInt64Env(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
		log.Printf("Invalid int64 for %s, using fallback", key)
	}
	return fallback
}
