package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8090
	cfg.Server.MaxHeaderBytes = 1 << 20
	cfg.Server.Timeout.Read = 5 * time.Second
	cfg.Server.Timeout.Write = 10 * time.Second
	cfg.Server.Timeout.Idle = time.Minute
	cfg.Server.Timeout.ReadHeader = 2 * time.Second
	cfg.API.BaseURL = "http://localhost:8080/api/v2"
	cfg.API.LegacyURL = "http://localhost:8080/api"
	cfg.API.Timeout = 15 * time.Second
	cfg.Storage.Dir = "/tmp/storefront"
	cfg.Search.Debounce = 300 * time.Millisecond
	cfg.Log.Level = "info"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "missing base URL", mutate: func(c *Config) { c.API.BaseURL = "" }},
		{name: "bad api timeout", mutate: func(c *Config) { c.API.Timeout = 0 }},
		{name: "missing storage dir", mutate: func(c *Config) { c.Storage.Dir = "" }},
		{name: "bad debounce", mutate: func(c *Config) { c.Search.Debounce = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_StringMasksToken(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Token = "eyJhbGciOi.secret.sig"

	s := cfg.String()
	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "****")

	cfg.Auth.Token = ""
	assert.Contains(t, cfg.String(), "<not configured>")
}
