// Package config defines the storefront application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bsms/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	API     APIConfig     `koanf:"api"`
	Auth    AuthConfig    `koanf:"auth"`
	Storage StorageConfig `koanf:"storage"`
	Search  SearchConfig  `koanf:"search"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig configures the local HTTP facade.
type ServerConfig struct {
	Port           int `koanf:"port"`
	MaxHeaderBytes int `koanf:"maxHeaderBytes"`
	Timeout        struct {
		Read       time.Duration `koanf:"read"`
		Write      time.Duration `koanf:"write"`
		Idle       time.Duration `koanf:"idle"`
		ReadHeader time.Duration `koanf:"readHeader"`
	} `koanf:"timeout"`
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP server port: %d", c.Port)
	}
	if c.Timeout.Read <= 0 {
		return fmt.Errorf("invalid HTTP server read timeout: %v", c.Timeout.Read)
	}
	if c.Timeout.Write <= 0 {
		return fmt.Errorf("invalid HTTP server write timeout: %v", c.Timeout.Write)
	}
	if c.Timeout.Idle <= 0 {
		return fmt.Errorf("invalid HTTP server idle timeout: %v", c.Timeout.Idle)
	}
	if c.Timeout.ReadHeader <= 0 {
		return fmt.Errorf("invalid HTTP server read header timeout: %v", c.Timeout.ReadHeader)
	}
	return nil
}

// APIConfig points at the storefront backend.
type APIConfig struct {
	BaseURL   string        `koanf:"baseurl"`
	LegacyURL string        `koanf:"legacyurl"`
	Timeout   time.Duration `koanf:"timeout"`
}

func (c *APIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("api base URL cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid api timeout: %v", c.Timeout)
	}
	return nil
}

// AuthConfig configures the identity provider. Token is a pre-issued ID
// token used by the static provider; empty means the app starts signed out
// and sign-in is unavailable until one is supplied.
type AuthConfig struct {
	Token string `koanf:"token"`
}

func (c *AuthConfig) Validate() error {
	return nil
}

// StorageConfig locates the local persistence directory.
type StorageConfig struct {
	Dir string `koanf:"dir"`
}

func (c *StorageConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}
	return nil
}

// SearchConfig tunes search-input handling.
type SearchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

func (c *SearchConfig) Validate() error {
	if c.Debounce <= 0 {
		return fmt.Errorf("invalid search debounce: %v", c.Debounce)
	}
	return nil
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func (c *LogConfig) Validate() error {
	return nil
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server Configuration ---\n")
	b.WriteString(fmt.Sprintf("  server.port: %d\n", c.Server.Port))
	b.WriteString(fmt.Sprintf("  server.maxHeaderBytes: %d\n", c.Server.MaxHeaderBytes))
	b.WriteString(fmt.Sprintf("  server.timeout.read: %v\n", c.Server.Timeout.Read))
	b.WriteString(fmt.Sprintf("  server.timeout.write: %v\n", c.Server.Timeout.Write))
	b.WriteString(fmt.Sprintf("  server.timeout.idle: %v\n", c.Server.Timeout.Idle))
	b.WriteString(fmt.Sprintf("  server.timeout.readHeader: %v\n", c.Server.Timeout.ReadHeader))

	b.WriteString("\n--- Backend API ---\n")
	b.WriteString(fmt.Sprintf("  api.baseurl: %s\n", c.API.BaseURL))
	b.WriteString(fmt.Sprintf("  api.legacyurl: %s\n", c.API.LegacyURL))
	b.WriteString(fmt.Sprintf("  api.timeout: %s\n", c.API.Timeout))

	b.WriteString("\n--- Auth ---\n")
	b.WriteString(fmt.Sprintf("  auth.token: %s\n", maskToken(c.Auth.Token)))

	b.WriteString("\n--- Local State ---\n")
	b.WriteString(fmt.Sprintf("  storage.dir: %s\n", c.Storage.Dir))
	b.WriteString(fmt.Sprintf("  search.debounce: %s\n", c.Search.Debounce))

	b.WriteString("\n--- Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))

	return b.String()
}

func maskToken(token string) string {
	if token == "" {
		return "<not configured>"
	}
	return "****"
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}
