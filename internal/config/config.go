// Package config reads server settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// DefaultMaxPixels allows images up to 40 megapixels.
const DefaultMaxPixels = 40_000_000

type Config struct {
	HTTPAddr string

	DBDriver string // sqlite|postgres|none
	DBDSN    string

	CORSOrigins []string

	LogLevel  string
	LogPretty bool

	MaxUploadMB int
	// MaxPixels caps the declared width*height of uploaded images.
	MaxPixels int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		DBDriver:    envOr("DB_DRIVER", "none"),
		DBDSN:       envOr("DB_DSN", ""),
		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogPretty:   envBool("LOG_PRETTY", false),
		MaxUploadMB: envInt("MAX_UPLOAD_MB", 32),
		MaxPixels:   envInt("MAX_PIXELS", DefaultMaxPixels),
	}
}

// MaxUploadBytes is the multipart body limit.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
