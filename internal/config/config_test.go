package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Load registers the -port flag on the default FlagSet, so it can only
// run once per test binary.
func TestLoad(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OVERPASS_URL", "http://localhost:7070/api/interpreter")
	t.Setenv("ADAPTER_TIMEOUT", "2s")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LLM_RPS", "0.5")
	t.Setenv("REPORTLOG_BACKEND", "s3")
	t.Setenv("MINIO_ROOT_USER", "minioadmin")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Port, "bare PORT values get a colon prefix")
	require.Equal(t, "http://localhost:7070/api/interpreter", cfg.Adapters.OverpassURL)
	require.Equal(t, 2*time.Second, cfg.Adapters.Timeout)
	require.Equal(t, 90*time.Second, cfg.Cache.TTL)
	require.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	require.Equal(t, 0.5, cfg.LLM.RPS)
	require.Equal(t, "s3", cfg.Log.Backend)
	require.Equal(t, "minioadmin", cfg.Log.S3AccessKey)

	// Untouched keys keep their defaults.
	require.Equal(t, "https://nominatim.openstreetmap.org", cfg.Adapters.NominatimURL)
	require.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	require.Equal(t, 4, cfg.LLM.MaxRounds)
	require.Empty(t, cfg.Adapters.FloodRiskURL)
}

func TestGetdurationIgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "not-a-duration")
	require.Equal(t, 3*time.Second, getduration("SOME_TIMEOUT", 3*time.Second))
}

func TestGetenvTrimsWhitespace(t *testing.T) {
	t.Setenv("SOME_KEY", "   ")
	require.Equal(t, "fallback", getenv("SOME_KEY", "fallback"))
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	require.Empty(t, firstNonEmpty("", " "))
}
