package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Client side.
	APIURL          string
	CredentialStore string
	CredentialsFile string
	Profile         string
	RedisAddr       string
	RedisPassword   string
	HTTPTimeout     time.Duration
	LogLevel        string
	LogFormat       string

	// Dev backend.
	HTTPAddr        string
	DatabaseURL     string
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SeedDemo        bool
}

func Load() Config {
	return Config{
		APIURL:          strings.TrimRight(getenv("PAMANA_API_URL", "http://127.0.0.1:8000"), "/"),
		CredentialStore: strings.ToLower(getenv("PAMANA_CREDENTIALS", "file")),
		CredentialsFile: getenv("PAMANA_CREDENTIALS_FILE", defaultCredentialsFile()),
		Profile:         getenv("PAMANA_PROFILE", "default"),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		RedisPassword:   getenv("REDIS_PASSWORD", ""),
		HTTPTimeout:     getenvDuration("HTTP_TIMEOUT", 0),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "text"),

		HTTPAddr:        getenv("HTTP_ADDR", ":8000"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		JWTSecret:       getenv("JWT_SECRET", "dev-secret"),
		JWTIssuer:       getenv("JWT_ISSUER", "pamana-notes"),
		AccessTokenTTL:  getenvDuration("ACCESS_TOKEN_TTL", 60*time.Minute),
		RefreshTokenTTL: getenvDuration("REFRESH_TOKEN_TTL", 24*time.Hour),
		SeedDemo:        getenvBool("SEED_DEMO", true),
	}
}

// LoadDotEnv reads .env style files into the process environment. Missing
// files are ignored; variables already set win over file values.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}

func defaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".pamana", "credentials.json")
	}
	return filepath.Join(home, ".pamana", "credentials.json")
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
