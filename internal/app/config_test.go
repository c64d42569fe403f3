package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/odyssey-erp/productmanager/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "config-test-secret-0123456789abcdef")
	t.Setenv("SESSION_STORE", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ProductManager", cfg.PGSchema)
	assert.Equal(t, 60*time.Second, cfg.SessionInactivity)
	assert.Equal(t, 30*time.Second, cfg.SessionWarning)
	assert.Equal(t, "token", cfg.RBACRoleSource)
	assert.Equal(t, "SuperAdmin", cfg.SuperAdminRole)
	assert.Equal(t, bcrypt.MinCost, cfg.BcryptCost)
	assert.Equal(t, 5, cfg.RateLimitAuth)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	_, err := LoadConfig()
	assert.EqualError(t, err, "jwt secret must be at least 32 bytes")
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWTSecret:         "config-test-secret-0123456789abcdef",
			SessionStore:      "redis",
			RBACRoleSource:    "live",
			LogFormat:         "json",
			SessionInactivity: time.Minute,
			SessionWarning:    30 * time.Second,
			TokenTTL:          time.Hour,
			BcryptCost:        12,
			RateLimitAPI:      100,
			RateLimitAuth:     5,
			RateLimitWindow:   15 * time.Minute,
			SuperAdminRole:    "SuperAdmin",
		}
	}
	cases := map[string]struct {
		mutate func(*Config)
		err    string
	}{
		"valid":              {func(*Config) {}, ""},
		"session store":      {func(c *Config) { c.SessionStore = "file" }, `unknown session store "file"`},
		"role source":        {func(c *Config) { c.RBACRoleSource = "cache" }, `unknown rbac role source "cache"`},
		"log format":         {func(c *Config) { c.LogFormat = "xml" }, `unknown log format "xml"`},
		"warning too long":   {func(c *Config) { c.SessionWarning = time.Minute }, "session warning must be shorter than the inactivity window"},
		"no inactivity":      {func(c *Config) { c.SessionInactivity = 0 }, "session inactivity must be positive"},
		"bcrypt cost":        {func(c *Config) { c.BcryptCost = 40 }, "bcrypt cost must be between 4 and 31"},
		"rate limit":         {func(c *Config) { c.RateLimitAuth = 0 }, "rate limits must be positive"},
		"missing superadmin": {func(c *Config) { c.SuperAdminRole = "" }, "superadmin role must be set"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tc.err)
		})
	}
}
