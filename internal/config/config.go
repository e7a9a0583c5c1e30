package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string
	LogConsole  bool
	CORSOrigins []string

	SessionTTL time.Duration
	LoginRate  float64
	LoginBurst int

	// RefdataSource is "db" or a path to a YAML manifest of GeoJSON files.
	RefdataSource string

	NearbyCacheSize int
	NearbyCacheTTL  time.Duration
	RedisAddr       string

	MetricsEnabled bool
}

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
}

// Load reads the process environment. Call godotenv first if a .env file
// should be honoured.
func Load() Config {
	return Config{
		Port:            getenv("PORT", "5050"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		CORSOrigins:     getlist("CORS_ORIGINS", defaultOrigins),
		SessionTTL:      getduration("SESSION_TTL", 6*time.Hour),
		LoginRate:       getfloat("LOGIN_RATE", 1),
		LoginBurst:      getint("LOGIN_BURST", 5),
		RefdataSource:   getenv("REFDATA_SOURCE", "db"),
		NearbyCacheSize: getint("NEARBY_CACHE_SIZE", 4096),
		NearbyCacheTTL:  getduration("NEARBY_CACHE_TTL", 10*time.Minute),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		MetricsEnabled:  getbool("METRICS_ENABLED", true),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is empty"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.LoginRate <= 0 || c.LoginBurst <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE and LOGIN_BURST must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getlist(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
