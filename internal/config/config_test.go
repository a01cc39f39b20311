package config

import (
	"bytes"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func routeFor(cfg *Config, resource string) *RouteConfig {
	for i := range cfg.Routes {
		if cfg.Routes[i].Resource == resource {
			return &cfg.Routes[i]
		}
	}
	return nil
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[upstream]
timeout = "750ms"
idle_connections = 50
max_concurrent = 64

[[routes]]
resource = "users"
service = "Account"
base_url = "http://users.internal:8081"

[[routes]]
resource = "orders"
base_url = "http://orders.internal:8082"
entity_methods = ["GET"]

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Upstream.Timeout.Std() != 750*time.Millisecond {
		t.Errorf("Upstream.Timeout = %s, want %s", cfg.Upstream.Timeout, 750*time.Millisecond)
	}
	if cfg.Upstream.MaxConcurrent != 64 {
		t.Errorf("Upstream.MaxConcurrent = %d, want %d", cfg.Upstream.MaxConcurrent, 64)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("len(Routes) = %d, want 2", len(cfg.Routes))
	}
	users := routeFor(cfg, "users")
	if users == nil || users.Service != "Account" || users.BaseURL != "http://users.internal:8081" {
		t.Errorf("users route = %+v", users)
	}
	orders := routeFor(cfg, "orders")
	if orders == nil {
		t.Fatal("orders route missing")
	}
	if !slices.Equal(orders.EntityMethods, []string{"GET"}) {
		t.Errorf("orders.EntityMethods = %v, want [GET]", orders.EntityMethods)
	}
	if !slices.Equal(orders.CollectionMethods, []string{http.MethodGet, http.MethodPost}) {
		t.Errorf("orders.CollectionMethods = %v, want default [GET POST]", orders.CollectionMethods)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v; a config file should be optional", err)
	}
	if cfg.FilePath() != "" {
		t.Errorf("FilePath() = %q, want empty", cfg.FilePath())
	}

	want := map[string]string{
		"users":    DefaultUserServiceURL,
		"orders":   DefaultOrderServiceURL,
		"products": DefaultProductServiceURL,
	}
	for resource, baseURL := range want {
		r := routeFor(cfg, resource)
		if r == nil {
			t.Errorf("route %q missing", resource)
			continue
		}
		if r.BaseURL != baseURL {
			t.Errorf("route %q BaseURL = %q, want %q", resource, r.BaseURL, baseURL)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, "")))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.BodyMaxBytes != 1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 1024*1024)
	}
	if cfg.Upstream.Timeout.Std() != 5*time.Second {
		t.Errorf("default Upstream.Timeout = %s, want 5s", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.MaxConcurrent != 0 {
		t.Errorf("default Upstream.MaxConcurrent = %d, want 0", cfg.Upstream.MaxConcurrent)
	}
	for _, r := range cfg.Routes {
		if !slices.Equal(r.CollectionMethods, []string{"GET", "POST"}) {
			t.Errorf("route %q CollectionMethods = %v", r.Resource, r.CollectionMethods)
		}
		if !slices.Equal(r.EntityMethods, []string{"GET", "PUT", "DELETE"}) {
			t.Errorf("route %q EntityMethods = %v", r.Resource, r.EntityMethods)
		}
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[upstream]
timeout = "30s"

[[routes]]
resource = "users"
base_url = "http://users.internal:8081"

[log]
level = "info"
`)

	cli := &CLI{
		Config:            path,
		Host:              "127.0.0.1",
		Port:              3000,
		UserServiceURL:    "http://localhost:5001",
		ProductServiceURL: "http://localhost:5003",
		UpstreamTimeout:   2 * time.Second,
		LogLevel:          "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Upstream.Timeout.Std() != 2*time.Second {
		t.Errorf("Upstream.Timeout = %s, want 2s (CLI override)", cfg.Upstream.Timeout)
	}
	if r := routeFor(cfg, "users"); r == nil || r.BaseURL != "http://localhost:5001" {
		t.Errorf("users route = %+v, want base_url overridden", r)
	}
	if r := routeFor(cfg, "products"); r == nil || r.BaseURL != "http://localhost:5003" {
		t.Errorf("products route = %+v, want route added from CLI", r)
	}
	if r := routeFor(cfg, "orders"); r != nil {
		t.Errorf("orders route = %+v, want absent (file declares routes explicitly)", r)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "negative port",
			data:    "[server]\nport = -1\n",
			wantErr: "server.port",
		},
		{
			name:    "negative body_max_bytes",
			data:    "[server]\nbody_max_bytes = -1\n",
			wantErr: "body_max_bytes",
		},
		{
			name:    "negative timeout",
			data:    "[upstream]\ntimeout = \"-5s\"\n",
			wantErr: "upstream.timeout",
		},
		{
			name:    "unparseable timeout",
			data:    "[upstream]\ntimeout = \"soon\"\n",
			wantErr: "parse",
		},
		{
			name:    "negative max_concurrent",
			data:    "[upstream]\nmax_concurrent = -1\n",
			wantErr: "max_concurrent",
		},
		{
			name:    "relative base url",
			data:    "[[routes]]\nresource = \"users\"\nbase_url = \"user-service:8080\"\n",
			wantErr: "base_url",
		},
		{
			name:    "non-http scheme",
			data:    "[[routes]]\nresource = \"users\"\nbase_url = \"ftp://user-service\"\n",
			wantErr: "base_url",
		},
		{
			name:    "missing base url",
			data:    "[[routes]]\nresource = \"users\"\n",
			wantErr: "base_url is required",
		},
		{
			name:    "unproxyable method",
			data:    "[[routes]]\nresource = \"users\"\nbase_url = \"http://u\"\nentity_methods = [\"PATCH\"]\n",
			wantErr: "PATCH",
		},
		{
			name:    "invalid log level",
			data:    "[log]\nlevel = \"verbose\"\n",
			wantErr: "log.level",
		},
		{
			name:    "invalid log format",
			data:    "[log]\nformat = \"xml\"\n",
			wantErr: "log.format",
		},
		{
			name:    "metrics path shadows api",
			data:    "[metrics]\nenabled = true\npath = \"/api/metrics\"\n",
			wantErr: "reserved route",
		},
		{
			name:    "rate limit without rps",
			data:    "[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n",
			wantErr: "requests_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_CORSDefaults(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, "[server.cors]\nenabled = true\n")))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.CORS.Enabled {
		t.Error("expected CORS.Enabled = true")
	}
	if !slices.Equal(cfg.Server.CORS.AllowOrigins, []string{"*"}) {
		t.Errorf("CORS.AllowOrigins = %v, want [*]", cfg.Server.CORS.AllowOrigins)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := &ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := s.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8080")
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "writable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0644 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(existing, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), existing})
	if got != existing {
		t.Errorf("findConfigInPaths() = %q, want %q", got, existing)
	}
	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}
