package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("LOCAL_ATTEMPT_TTL_MINUTES", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 2*time.Hour, cfg.LocalAttemptTTL)
	assert.Equal(t, 30*time.Minute, cfg.ExamCacheTTL)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_EXPIRY_HOURS", "2")
	t.Setenv("LOCAL_ATTEMPT_TTL_MINUTES", "15")
	t.Setenv("MAX_DB_CONNS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 15*time.Minute, cfg.LocalAttemptTTL)
	assert.Equal(t, int32(16), cfg.MaxDBConns)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "attempt:abc:answers", CacheKey.AttemptAnswersKey("abc"))
	assert.Equal(t, "local_attempt:abc:result", CacheKey.LocalAttemptResultKey("abc"))
	assert.Equal(t, "exam:e1:definition", CacheKey.ExamDefinitionKey("e1"))
}
