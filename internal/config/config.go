// Package config loads runtime settings from .env files, environment
// variables, and flags. Flags win over env, env wins over defaults.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	Adapters AdapterConfig
	Cache    CacheConfig
	LLM      LLMConfig
	Log      LogConfig
}

// AdapterConfig holds provider endpoints and keys. Empty optional keys
// leave their adapter reporting "not configured".
type AdapterConfig struct {
	OverpassURL   string
	NominatimURL  string
	FloodRiskURL  string
	FloodRiskKey  string
	AirQualityURL string
	LandCoverURL  string
	WikipediaURL  string
	GeoapifyURL   string
	GeoapifyKey   string
	WeatherURL    string

	Timeout time.Duration
}

type CacheConfig struct {
	TTL time.Duration

	// Redis is optional; empty Addr keeps the in-memory tier.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type LLMConfig struct {
	APIKey    string
	Model     string
	RPS       float64
	Burst     int
	MaxRounds int
	Timeout   time.Duration
}

// LogConfig selects the report log backend: "postgres", "s3" or ""
// (disabled).
type LogConfig struct {
	Backend     string
	PostgresDSN string

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	cfg := &Config{
		Port: *port,
		Adapters: AdapterConfig{
			OverpassURL:   getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			NominatimURL:  getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
			FloodRiskURL:  getenv("FLOODRISK_URL", ""),
			FloodRiskKey:  getenv("FLOODRISK_API_KEY", ""),
			AirQualityURL: getenv("AIRQUALITY_URL", "https://air-quality-api.open-meteo.com"),
			LandCoverURL:  getenv("LANDCOVER_URL", ""),
			WikipediaURL:  getenv("WIKIPEDIA_URL", "https://en.wikipedia.org/w/api.php"),
			GeoapifyURL:   getenv("GEOAPIFY_URL", "https://api.geoapify.com"),
			GeoapifyKey:   getenv("GEOAPIFY_API_KEY", ""),
			WeatherURL:    getenv("WEATHER_URL", "https://api.open-meteo.com"),
			Timeout:       getduration("ADAPTER_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			TTL:           getduration("CACHE_TTL", 5*time.Minute),
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			APIKey:    getenv("GEMINI_API_KEY", ""),
			Model:     getenv("LLM_MODEL", "gemini-2.5-flash"),
			RPS:       getfloat("LLM_RPS", 0.25),
			Burst:     getint("LLM_BURST", 1),
			MaxRounds: getint("LLM_MAX_ROUNDS", 4),
			Timeout:   getduration("LLM_TIMEOUT", 45*time.Second),
		},
		Log: LogConfig{
			Backend:     getenv("REPORTLOG_BACKEND", ""),
			PostgresDSN: getenv("REPORTLOG_POSTGRES_DSN", ""),
			S3Endpoint:  getenv("REPORTLOG_S3_ENDPOINT", ""),
			S3Region:    getenv("REPORTLOG_S3_REGION", "us-east-1"),
			S3AccessKey: firstNonEmpty(os.Getenv("REPORTLOG_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
			S3SecretKey: firstNonEmpty(os.Getenv("REPORTLOG_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
			S3Bucket:    getenv("REPORTLOG_S3_BUCKET", "geoctx-reports"),
			S3UseSSL:    getbool("REPORTLOG_S3_USE_SSL", false),
		},
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
