package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Database
	DatabaseURL string

	// Auth0 validates bearer tokens for owner-authenticated requests.
	// Anonymous, share-code-only access never reaches this path, so these
	// are optional: an empty Auth0Domain disables the owner-auth middleware
	// rather than failing startup.
	Auth0Domain   string
	Auth0Audience string
	Auth0ClientID string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// PushHubBuffer is read from PUSH_HUB_BUFFER but is not passed to the
	// websocket hub; each client's outbound channel is fixed at 256 messages.
	PushHubBuffer int

	// ShareCodeAlphabet is the character set used to generate public bill
	// share codes.
	ShareCodeAlphabet string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		Auth0Domain:       getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:     getEnv("AUTH0_AUDIENCE", ""),
		Auth0ClientID:     getEnv("AUTH0_CLIENT_ID", ""),
		Port:              getEnv("PORT", "8080"),
		CORSOrigins:       strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:               getEnv("ENV", "development"),
		PushHubBuffer:     getEnvInt("PUSH_HUB_BUFFER", 32),
		ShareCodeAlphabet: getEnv("SHARE_CODE_ALPHABET", "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.ShareCodeAlphabet) < 2 {
		return fmt.Errorf("SHARE_CODE_ALPHABET must have at least 2 characters")
	}
	return nil
}

// OwnerAuthEnabled reports whether owner-JWT authentication is configured.
// When false, every request is treated as anonymous/share-code access.
func (c *Config) OwnerAuthEnabled() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
