package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/secret"
)

// ConfigFileKey is the viper key holding the optional config file path.
const ConfigFileKey = "config"

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete process configuration.
type Config struct {
	Auth       AuthConfig       `mapstructure:"auth"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	ToolServer ToolServerConfig `mapstructure:"toolserver"`
	Session    SessionConfig    `mapstructure:"session"`
	Observe    ObserveConfig    `mapstructure:"observe"`
}

// AuthConfig describes the identity provider and the token audience.
type AuthConfig struct {
	TenantID      string        `mapstructure:"tenant_id"`
	ClientID      string        `mapstructure:"client_id"`
	APIClientID   string        `mapstructure:"api_client_id"`
	AuthorityHost string        `mapstructure:"authority_host"`
	JWKSURL       string        `mapstructure:"jwks_url"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Scope         string        `mapstructure:"scope"`
	Discover      bool          `mapstructure:"discover"`
	KeyTTL        time.Duration `mapstructure:"key_ttl"`
}

// GatewayConfig configures the shared backend.
type GatewayConfig struct {
	Addr               string        `mapstructure:"addr"`
	ToolServerURL      string        `mapstructure:"tool_server_url"`
	DispatchTimeout    time.Duration `mapstructure:"dispatch_timeout"`
	StaticDir          string        `mapstructure:"static_dir"`
	MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls"`
}

// ToolServerConfig configures the downstream tool server.
type ToolServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SessionConfig configures the Session→Token table.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
}

// ObserveConfig configures logging and telemetry.
type ObserveConfig struct {
	LogLevel        string `mapstructure:"log_level"`
	TracingExporter string `mapstructure:"tracing_exporter"`
	MetricsExporter string `mapstructure:"metrics_exporter"`
}

type setting struct {
	key string
	env string
	def any
}

var settings = []setting{
	{"auth.tenant_id", "ENTRA_TENANT_ID", ""},
	{"auth.client_id", "AGENT_CLIENT_ID", ""},
	{"auth.api_client_id", "MCP_API_CLIENT_ID", ""},
	{"auth.authority_host", "AUTHORITY_HOST", "https://login.microsoftonline.com"},
	{"auth.jwks_url", "JWKS_URL", ""},
	{"auth.issuer", "TOKEN_ISSUER", ""},
	{"auth.audience", "TOKEN_AUDIENCE", ""},
	{"auth.scope", "AUTH_SCOPE", ""},
	{"auth.discover", "OIDC_DISCOVERY", false},
	{"auth.key_ttl", "JWKS_KEY_TTL", time.Hour},
	{"gateway.addr", "GATEWAY_ADDR", ":8000"},
	{"gateway.tool_server_url", "MCP_SERVER_URL", "http://localhost:8001/mcp"},
	{"gateway.dispatch_timeout", "DISPATCH_TIMEOUT", 30 * time.Second},
	{"gateway.static_dir", "STATIC_DIR", ""},
	{"gateway.max_concurrent_calls", "MAX_CONCURRENT_CALLS", 64},
	{"toolserver.addr", "TOOLSERVER_ADDR", ":8001"},
	{"session.backend", "SESSION_BACKEND", BackendMemory},
	{"session.ttl", "SESSION_TTL", time.Hour},
	{"session.max_entries", "SESSION_MAX_ENTRIES", 10000},
	{"session.redis_addr", "REDIS_ADDR", "localhost:6379"},
	{"session.redis_password", "REDIS_PASSWORD", ""},
	{"observe.log_level", "LOG_LEVEL", "info"},
	{"observe.tracing_exporter", "TRACING_EXPORTER", "none"},
	{"observe.metrics_exporter", "METRICS_EXPORTER", "prometheus"},
}

// Load reads the configuration through v. Flags bound to v by the caller
// take precedence over everything else; the file named by ConfigFileKey, if
// any, is read before environment overrides apply.
func Load(ctx context.Context, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", s.env, err)
		}
	}

	if path := v.GetString(ConfigFileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := secret.DefaultResolver().ResolveFields(ctx, &cfg.Session.RedisPassword); err != nil {
		return nil, fmt.Errorf("config: session.redis_password: %w", err)
	}

	cfg.Auth.derive()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// derive fills the URLs and audience implied by the tenant and client ids.
func (a *AuthConfig) derive() {
	a.AuthorityHost = strings.TrimRight(a.AuthorityHost, "/")
	if a.TenantID != "" {
		if a.Issuer == "" {
			a.Issuer = a.Authority() + "/v2.0"
		}
		if a.JWKSURL == "" && !a.Discover {
			a.JWKSURL = a.Authority() + "/discovery/v2.0/keys"
		}
	}
	if a.Audience == "" {
		a.Audience = a.APIClientID
	}
	if a.Scope == "" && a.APIClientID != "" {
		a.Scope = "api://" + a.APIClientID + "/MCP.Access"
	}
}

// Authority is the tenant-specific authority URL.
func (a AuthConfig) Authority() string {
	return a.AuthorityHost + "/" + a.TenantID
}

// AuthEnabled reports whether tenant, client and API client ids are all
// set. Otherwise the gateway serves without a gate.
func (c *Config) AuthEnabled() bool {
	return c.Auth.TenantID != "" && c.Auth.ClientID != "" && c.Auth.APIClientID != ""
}

// VerificationEnabled reports whether the tool server verifies tokens: the
// tenant and the audience are set. The front-end client id is not needed.
// Otherwise the tool server accepts unauthenticated calls.
func (c *Config) VerificationEnabled() bool {
	return c.Auth.TenantID != "" && c.Auth.Audience != ""
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: session.backend %q (want memory or redis)", ErrInvalid, c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session.ttl must be positive", ErrInvalid)
	}
	if c.Session.MaxEntries <= 0 {
		return fmt.Errorf("%w: session.max_entries must be positive", ErrInvalid)
	}
	if c.Gateway.DispatchTimeout <= 0 {
		return fmt.Errorf("%w: gateway.dispatch_timeout must be positive", ErrInvalid)
	}
	if c.Gateway.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("%w: gateway.max_concurrent_calls must be positive", ErrInvalid)
	}
	if c.Auth.KeyTTL <= 0 {
		return fmt.Errorf("%w: auth.key_ttl must be positive", ErrInvalid)
	}
	return nil
}

// ObserverConfig maps the settings onto observe.Config for service.
func (c *Config) ObserverConfig(service, version string) observe.Config {
	return observe.Config{
		ServiceName: service,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.TracingExporter != "" && c.Observe.TracingExporter != "none",
			Exporter:  c.Observe.TracingExporter,
			SamplePct: 1.0,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.MetricsExporter != "" && c.Observe.MetricsExporter != "none",
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Observe.LogLevel,
		},
	}
}
