package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server settings, resolved once at startup.
type Config struct {
	Addr string

	// Backend selects the storage implementation: "file" or "sqlite".
	Backend    string
	StorageDir string
	DBPath     string
	UsersDir   string

	JWTSecret []byte

	// FlushDelay is the quiet period before a pending edit is written
	// to durable storage.
	FlushDelay time.Duration
}

// Load reads configuration from a .env file (if present) and the
// environment. Missing keys fall back to development defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env: %v", err)
	}

	cfg := &Config{
		Addr:       ":" + getenv("PORT", "8080"),
		Backend:    getenv("DRAFTPAD_BACKEND", "file"),
		StorageDir: getenv("DRAFTPAD_STORAGE_DIR", "./data/storage"),
		DBPath:     getenv("DRAFTPAD_DB_PATH", "./data/draftpad.db"),
		UsersDir:   getenv("DRAFTPAD_USERS_DIR", "./data/users"),
		JWTSecret:  []byte(getenv("DRAFTPAD_JWT_SECRET", "dev-secret-change-me")),
		FlushDelay: 2000 * time.Millisecond,
	}

	if ms := os.Getenv("DRAFTPAD_FLUSH_DELAY_MS"); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil || n <= 0 {
			log.Printf("Ignoring invalid DRAFTPAD_FLUSH_DELAY_MS=%q", ms)
		} else {
			cfg.FlushDelay = time.Duration(n) * time.Millisecond
		}
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
