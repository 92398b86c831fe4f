// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	minSecretLength = 32
)

var developmentOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
}

type Config struct {
	Port    string
	GinMode string
	AppEnv  string

	DatabaseURL    string
	EnableDB       bool
	MigrateOnStart bool

	ModelPath    string
	ModelOutput  string
	ModelThreads int

	SupabaseURL   string
	SupabaseKey   string
	StorageBucket string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	CORSOrigins       []string
	TrustedProxies    []string
	MaxUploadBytes    int64
	PredictRatePerMin int

	LogLevel  string
	LogFormat string
}

// Load reads the environment, falling back to defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	appEnv := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "release"),
		AppEnv:  appEnv,

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		EnableDB:       strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		MigrateOnStart: strings.EqualFold(getEnv("MIGRATE_ON_START", "false"), "true"),

		ModelPath:   getEnv("MODEL_PATH", "models/pneumonia_classifier.tflite"),
		ModelOutput: getEnv("MODEL_OUTPUT", "probabilities"),

		SupabaseURL:   strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:   os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		StorageBucket: getEnv("STORAGE_BUCKET", "xrays"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: getEnv("JWT_ISSUER", "pneumoscan"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat(appEnv))),
	}

	var err error
	if cfg.ModelThreads, err = getInt("MODEL_THREADS", 0); err != nil {
		return nil, err
	}
	if cfg.PredictRatePerMin, err = getInt("PREDICT_RATE_PER_MIN", 30); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.JWTTTL, err = time.ParseDuration(getEnv("JWT_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("JWT_TTL: %w", err)
	}
	cfg.CORSOrigins = corsOrigins(appEnv, os.Getenv("CORS_ORIGINS"))
	cfg.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EnableDB && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if c.EnableDB && len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes when ENABLE_DB=true", minSecretLength)
	}
	if c.EnableDB && !c.StorageEnabled() {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required when ENABLE_DB=true")
	}
	if (c.SupabaseURL == "") != (c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set together")
	}
	if c.StorageEnabled() && c.StorageBucket == "" {
		return fmt.Errorf("STORAGE_BUCKET must not be empty")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.PredictRatePerMin < 0 {
		return fmt.Errorf("PREDICT_RATE_PER_MIN must not be negative")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
			}
		}
	}
	if c.AppEnv == EnvProduction && len(c.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required when APP_ENV=production")
	}
	return nil
}

// StorageEnabled reports whether a blob store is configured.
func (c *Config) StorageEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func corsOrigins(appEnv, raw string) []string {
	if raw != "" {
		return splitList(raw)
	}
	if appEnv == EnvProduction {
		return nil
	}
	return append([]string(nil), developmentOrigins...)
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func defaultLogFormat(appEnv string) string {
	if appEnv == EnvDevelopment {
		return "console"
	}
	return "json"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
