package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env   string
	Port  string
	DBURL string

	Issuer      string
	Audience    string
	ActiveKeyID string
	SigningKeys map[string][]byte

	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RotateRefreshTokens bool
	ClockSkew           time.Duration

	PasswordMinLength  int
	PasswordMinClasses int

	LockThreshold int
	LockWindow    time.Duration

	RequireEmailConfirmation bool
	DefaultRole              string
}

// Load reads configuration from the environment, with an optional .env file
// for local development. The signing key set is given as SIGNING_KEYS in
// "kid:secret[,kid:secret...]" form; superseded keys stay listed so tokens
// they signed remain verifiable until expiry.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                      getEnv("ENV", "development"),
		Port:                     getEnv("PORT", "8080"),
		DBURL:                    os.Getenv("DB_URL"),
		Issuer:                   getEnv("TOKEN_ISSUER", "avp-authcore"),
		Audience:                 getEnv("TOKEN_AUDIENCE", ""),
		ActiveKeyID:              os.Getenv("ACTIVE_KEY_ID"),
		AccessTTL:                time.Duration(getEnvAsInt("ACCESS_TOKEN_EXPIRY", 15)) * time.Minute,
		RefreshTTL:               time.Duration(getEnvAsInt("REFRESH_TOKEN_EXPIRY", 10080)) * time.Minute,
		RotateRefreshTokens:      getEnvAsBool("ROTATE_REFRESH_TOKENS", true),
		ClockSkew:                time.Duration(getEnvAsInt("CLOCK_SKEW_SECONDS", 30)) * time.Second,
		PasswordMinLength:        getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMinClasses:       getEnvAsInt("PASSWORD_MIN_CLASSES", 2),
		LockThreshold:            getEnvAsInt("LOCK_THRESHOLD", 0),
		LockWindow:               time.Duration(getEnvAsInt("LOCK_WINDOW_MINUTES", 15)) * time.Minute,
		RequireEmailConfirmation: getEnvAsBool("REQUIRE_EMAIL_CONFIRMATION", false),
		DefaultRole:              getEnv("DEFAULT_ROLE", "user"),
	}

	if cfg.DBURL == "" {
		return nil, fmt.Errorf("missing required environment variable: DB_URL")
	}

	keys, firstKid, err := parseKeySet(os.Getenv("SIGNING_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.SigningKeys = keys
	if cfg.ActiveKeyID == "" {
		cfg.ActiveKeyID = firstKid
	}
	if _, ok := cfg.SigningKeys[cfg.ActiveKeyID]; !ok {
		return nil, fmt.Errorf("ACTIVE_KEY_ID %q is not present in SIGNING_KEYS", cfg.ActiveKeyID)
	}

	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("access token TTL (%s) must be shorter than refresh token TTL (%s)",
			cfg.AccessTTL, cfg.RefreshTTL)
	}

	return cfg, nil
}

func parseKeySet(raw string) (map[string][]byte, string, error) {
	if raw == "" {
		return nil, "", fmt.Errorf("missing required environment variable: SIGNING_KEYS")
	}

	keys := make(map[string][]byte)
	firstKid := ""
	for _, entry := range strings.Split(raw, ",") {
		kid, secret, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || kid == "" || secret == "" {
			return nil, "", fmt.Errorf("invalid SIGNING_KEYS entry %q, want kid:secret", entry)
		}
		if _, exists := keys[kid]; exists {
			return nil, "", fmt.Errorf("duplicate signing key id %q", kid)
		}
		keys[kid] = []byte(secret)
		if firstKid == "" {
			firstKid = kid
		}
	}
	return keys, firstKid, nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
