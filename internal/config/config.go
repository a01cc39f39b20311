// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/api-gateway/config.toml",
	"configs/config.toml",
}

// Default backend base URLs, matching the service names of the compose deployment.
const (
	DefaultUserServiceURL    = "http://user-service:8080"
	DefaultOrderServiceURL   = "http://order-service:8080"
	DefaultProductServiceURL = "http://product-service:8080"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config            string        `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host              string        `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port              int           `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	UserServiceURL    string        `kong:"name='user-service-url',help='User service base URL (overrides config).',env='USER_SERVICE_URL'"`
	OrderServiceURL   string        `kong:"name='order-service-url',help='Order service base URL (overrides config).',env='ORDER_SERVICE_URL'"`
	ProductServiceURL string        `kong:"name='product-service-url',help='Product service base URL (overrides config).',env='PRODUCT_SERVICE_URL'"`
	UpstreamTimeout   time.Duration `kong:"name='upstream-timeout',help='Per-call backend timeout, e.g. 5s (overrides config).',env='UPSTREAM_TIMEOUT'"`
	LogLevel          string        `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat         string        `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level gateway configuration. It is built once at startup
// and never mutated afterwards.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Routes   []RouteConfig  `toml:"routes"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
	CORS         CORSConfig      `toml:"cors"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CORSConfig controls cross-origin request handling.
type CORSConfig struct {
	Enabled      bool     `toml:"enabled"`
	AllowOrigins []string `toml:"allow_origins"`
}

// UpstreamConfig holds backend connection settings shared by all routes.
type UpstreamConfig struct {
	Timeout          Duration `toml:"timeout"`
	IdleConnections  int      `toml:"idle_connections"`
	MaxConcurrent    int64    `toml:"max_concurrent"` // 0 disables the cap
	MaxResponseBytes int64    `toml:"max_response_bytes"`
}

// RouteConfig binds a resource prefix to a backend.
type RouteConfig struct {
	Resource          string   `toml:"resource"`
	Service           string   `toml:"service"`
	BaseURL           string   `toml:"base_url"`
	CollectionMethods []string `toml:"collection_methods"`
	EntityMethods     []string `toml:"entity_methods"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the optional TOML config file and applies CLI and environment overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/api-gateway/config.toml then configs/config.toml. Without a file the
// gateway runs on defaults and environment variables alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	if len(cfg.Routes) == 0 {
		cfg.Routes = defaultRoutes()
	}
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func defaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Resource: "users", BaseURL: DefaultUserServiceURL},
		{Resource: "orders", BaseURL: DefaultOrderServiceURL},
		{Resource: "products", BaseURL: DefaultProductServiceURL},
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.UpstreamTimeout != 0 {
		c.Upstream.Timeout = Duration(cli.UpstreamTimeout)
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
	c.overrideBaseURL("users", cli.UserServiceURL)
	c.overrideBaseURL("orders", cli.OrderServiceURL)
	c.overrideBaseURL("products", cli.ProductServiceURL)
}

// overrideBaseURL replaces the base URL of the named route, adding the route
// when the config file does not declare it.
func (c *Config) overrideBaseURL(resource, baseURL string) {
	if baseURL == "" {
		return
	}
	for i := range c.Routes {
		if c.Routes[i].Resource == resource {
			c.Routes[i].BaseURL = baseURL
			return
		}
	}
	c.Routes = append(c.Routes, RouteConfig{Resource: resource, BaseURL: baseURL})
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must be non-negative; got %s", c.Upstream.Timeout)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxConcurrent < 0 {
		return fmt.Errorf("upstream.max_concurrent must be non-negative; got %d", c.Upstream.MaxConcurrent)
	}
	if c.Upstream.MaxResponseBytes < 0 {
		return fmt.Errorf("upstream.max_response_bytes must be non-negative; got %d", c.Upstream.MaxResponseBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Backend URLs must be absolute http(s) URLs.
	for i, r := range c.Routes {
		if r.BaseURL == "" {
			return fmt.Errorf("routes[%d].base_url is required", i)
		}
		u, err := url.Parse(r.BaseURL)
		if err != nil {
			return fmt.Errorf("routes[%d].base_url is not a valid URL: %w", i, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("routes[%d].base_url must be an absolute http(s) URL; got %q", i, r.BaseURL)
		}
		for _, m := range append(append([]string{}, r.CollectionMethods...), r.EntityMethods...) {
			if !proxyableMethods[strings.ToUpper(m)] {
				return fmt.Errorf("routes[%d]: method %q is not proxyable", i, m)
			}
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' || p == "/" {
			return fmt.Errorf("metrics.path must start with '/' and name a route; got %q", p)
		}
		for _, reserved := range []string{"/api", "/health"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// proxyableMethods lists the verbs a route may allow.
var proxyableMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if len(c.Server.CORS.AllowOrigins) == 0 {
		c.Server.CORS.AllowOrigins = []string{"*"}
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = Duration(5 * time.Second)
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxResponseBytes == 0 {
		c.Upstream.MaxResponseBytes = 10 * 1024 * 1024 // 10 MB
	}
	for i := range c.Routes {
		if len(c.Routes[i].CollectionMethods) == 0 {
			c.Routes[i].CollectionMethods = []string{http.MethodGet, http.MethodPost}
		}
		if len(c.Routes[i].EntityMethods) == 0 {
			c.Routes[i].EntityMethods = []string{http.MethodGet, http.MethodPut, http.MethodDelete}
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file the configuration was read from, if any.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; backend URLs could be redirected",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
