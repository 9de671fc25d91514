package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/moonshotcommons/timelock/store"
	"github.com/moonshotcommons/timelock/timelock"
)

// Base includes the list of methods that config objects are expected to implement
type Base interface {
	// GetLoadedConfigPath returns the path to the config file that was loaded
	GetLoadedConfigPath() string
	// SetLoadedConfigPath sets the path to the config file that was loaded.
	SetLoadedConfigPath(path string)
	// GetInstanceID returns the instance ID
	GetInstanceID() string
	// GetOtelResource returns the OpenTelemetry Resource object
	GetOtelResource(name string) (*resource.Resource, error)
}

// Config is the configuration for timelockd.
// Values are read from a YAML file and can be overridden with env vars prefixed with "TIMELOCK_".
type Config struct {
	// Log level: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	// If true, logs are emitted as JSON
	LogAsJSON bool `yaml:"logAsJSON" env:"LOG_AS_JSON"`

	// Address of the timelock's own account, as a hex string
	// Required
	Address string `yaml:"address" env:"ADDRESS"`

	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Tailscale TailscaleConfig `yaml:"tailscale" envPrefix:"TAILSCALE_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`

	// Webhooks that receive the calls made to target addresses
	Targets []TargetConfig `yaml:"targets"`

	// Internal keys
	loadedConfigPath string `yaml:"-"`
	instanceID       string `yaml:"-"`
	address          timelock.Address
}

// ServerConfig contains the options for the HTTP server.
type ServerConfig struct {
	// Address to bind to
	// Default: "127.0.0.1"
	Bind string `yaml:"bind" env:"BIND"`
	// Port to listen on
	// Default: 7750
	Port int `yaml:"port" env:"PORT"`
	// Folder containing the "tls-cert.pem" and "tls-key.pem" files; they are reloaded when they change
	TLSPath string `yaml:"tlsPath" env:"TLS_PATH"`
	// PEM-encoded TLS certificate and key, which take precedence over TLSPath
	TLSCertPEM string `yaml:"tlsCertPEM" env:"TLS_CERT_PEM"`
	TLSKeyPEM  string `yaml:"tlsKeyPEM" env:"TLS_KEY_PEM"`
	// Maximum size of request bodies, in bytes
	// Default: 1MB
	MaxBodySize int64 `yaml:"maxBodySize" env:"MAX_BODY_SIZE"`
}

// TailscaleConfig contains the options to expose the server on a tailnet instead of a local port.
type TailscaleConfig struct {
	Enabled   bool     `yaml:"enabled" env:"ENABLED"`
	Hostname  string   `yaml:"hostname" env:"HOSTNAME"`
	AuthKey   string   `yaml:"authKey" env:"AUTH_KEY"`
	StateDir  string   `yaml:"stateDir" env:"STATE_DIR"`
	Ephemeral bool     `yaml:"ephemeral" env:"EPHEMERAL"`
	Tags      []string `yaml:"tags" env:"TAGS"`
	// Port on the tailnet
	// Default: 443
	Port int `yaml:"port" env:"PORT"`
}

// StoreConfig contains the options for the state store.
// The store holds the owner and the queued flags only: the value ledger that receives deposits is always kept in memory, so balances are lost when the process restarts even with the sqlite and redis stores.
type StoreConfig struct {
	// One of "memory", "sqlite", "redis"
	// Default: "memory"
	Type string `yaml:"type" env:"TYPE"`
	// Path to the SQLite database
	// Default: "timelock.db"
	SQLitePath string `yaml:"sqlitePath" env:"SQLITE_PATH"`

	RedisAddr      string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword  string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redisDB" env:"REDIS_DB"`
	RedisKeyPrefix string `yaml:"redisKeyPrefix" env:"REDIS_KEY_PREFIX"`
}

// AuthConfig contains the options for authenticating callers.
type AuthConfig struct {
	// Secret used to sign and verify tokens (HS256); must be at least 32 characters long
	// Required
	TokenSecret string `yaml:"tokenSecret" env:"TOKEN_SECRET"`
	// Value of the "iss" and "aud" claims
	// Default: "timelockd"
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// Maximum lifetime of tokens
	// Default: 5m
	MaxTokenTTL time.Duration `yaml:"maxTokenTTL" env:"MAX_TOKEN_TTL"`
}

// TargetConfig routes the calls made to a target address to a webhook.
type TargetConfig struct {
	Address string        `yaml:"address"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SetDefaults sets the default values for options that are not set.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7750
	}
	if c.Server.MaxBodySize == 0 {
		c.Server.MaxBodySize = 1 << 20
	}
	if c.Tailscale.Port == 0 {
		c.Tailscale.Port = 443
	}
	if c.Store.Type == "" {
		c.Store.Type = store.TypeMemory
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "timelock.db"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "timelockd"
	}
	if c.Auth.MaxTokenTTL == 0 {
		c.Auth.MaxTokenTTL = 5 * time.Minute
	}
}

// Validate the configuration, and parse values that need to be parsed.
func (c *Config) Validate() error {
	var err error

	c.address, err = timelock.ParseAddress(c.Address)
	if err != nil || c.address.IsZero() {
		return NewConfigError("Property 'address' must be a non-zero hex-encoded address", "Invalid configuration")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return NewConfigError("Property 'server.port' must be between 1 and 65535", "Invalid configuration")
	}
	if c.Server.MaxBodySize < 0 {
		return NewConfigError("Property 'server.maxBodySize' must not be negative", "Invalid configuration")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return NewConfigError("Property 'tailscale.hostname' is required when Tailscale is enabled", "Invalid configuration")
	}

	err = store.ValidateType(c.Store.Type)
	if err != nil {
		return NewConfigError(err, "Invalid configuration for 'store.type'")
	}
	if c.Store.Type == store.TypeRedis && c.Store.RedisAddr == "" {
		return NewConfigError("Property 'store.redisAddr' is required when the store type is 'redis'", "Invalid configuration")
	}

	if len(c.Auth.TokenSecret) < 32 {
		return NewConfigError("Property 'auth.tokenSecret' must be at least 32 characters long", "Invalid configuration")
	}
	if c.Auth.MaxTokenTTL < time.Second {
		return NewConfigError("Property 'auth.maxTokenTTL' must be at least 1s", "Invalid configuration")
	}

	seen := make(map[timelock.Address]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		addr, err := timelock.ParseAddress(t.Address)
		if err != nil {
			return NewConfigError(fmt.Sprintf("Property 'targets[%d].address' is not a valid address", i), "Invalid configuration")
		}
		if _, ok := seen[addr]; ok {
			return NewConfigError(fmt.Sprintf("Property 'targets[%d].address' is a duplicate", i), "Invalid configuration")
		}
		seen[addr] = struct{}{}

		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewConfigError(fmt.Sprintf("Property 'targets[%d].url' must be an http or https URL", i), "Invalid configuration")
		}
	}

	return nil
}

// GetAddress returns the parsed address of the timelock's account.
// It's only set after Validate succeeds.
func (c *Config) GetAddress() timelock.Address {
	return c.address
}

// GetLoadedConfigPath returns the path to the config file that was loaded.
func (c *Config) GetLoadedConfigPath() string {
	return c.loadedConfigPath
}

// SetLoadedConfigPath sets the path to the config file that was loaded.
func (c *Config) SetLoadedConfigPath(filePath string) {
	c.loadedConfigPath = filePath
}

// GetInstanceID returns the instance ID.
func (c *Config) GetInstanceID() string {
	return c.instanceID
}

// SetInstanceID sets the instance ID.
func (c *Config) SetInstanceID(id string) {
	c.instanceID = id
}

// GetOtelResource returns the OpenTelemetry Resource object.
func (c *Config) GetOtelResource(name string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", name),
	}
	if c.instanceID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", c.instanceID))
	}

	res, err := resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenTelemetry resource: %w", err)
	}
	return res, nil
}

// String returns a description of the store, without credentials.
func (s StoreConfig) String() string {
	switch s.Type {
	case store.TypeSQLite:
		return "sqlite:" + s.SQLitePath
	case store.TypeRedis:
		return "redis:" + s.RedisAddr
	default:
		return s.Type
	}
}
