package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv overlays process environment variables from a .env file in the
// working directory, if present, before Load expands ${VAR} references in
// config.yaml. Missing .env files are not an error.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env overlay", "error", err)
	}
}
