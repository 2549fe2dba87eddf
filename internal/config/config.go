// Package config loads server settings. Values are layered: built-in
// defaults, then an optional TOML or YAML file, then MCP_* environment
// variables, then command-line flags that were explicitly set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ggoodman/mcp-sse-server-go/content"
	"github.com/ggoodman/mcp-sse-server-go/ssehttp"
	"github.com/joeshaw/envdecode"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the full set of server settings.
type Config struct {
	// Addr is the listen address. ENV: MCP_ADDR
	Addr string `toml:"addr" yaml:"addr" env:"MCP_ADDR"`
	// BaseURL, when set, makes endpoint events absolute. ENV: MCP_BASE_URL
	BaseURL string `toml:"base_url" yaml:"base_url" env:"MCP_BASE_URL"`

	ServerName    string `toml:"server_name" yaml:"server_name" env:"MCP_SERVER_NAME"`
	ServerVersion string `toml:"server_version" yaml:"server_version" env:"MCP_SERVER_VERSION"`

	SSEPath     string `toml:"sse_path" yaml:"sse_path" env:"MCP_SSE_PATH"`
	MessagePath string `toml:"message_path" yaml:"message_path" env:"MCP_MESSAGE_PATH"`
	// MetricsPath is empty to disable the metrics route.
	MetricsPath string `toml:"metrics_path" yaml:"metrics_path" env:"MCP_METRICS_PATH"`

	KeepAlive           time.Duration `toml:"keep_alive" yaml:"keep_alive" env:"MCP_KEEP_ALIVE"`
	ExplicitHeaderFlush bool          `toml:"explicit_header_flush" yaml:"explicit_header_flush" env:"MCP_EXPLICIT_HEADER_FLUSH"`
	ProbePolicy         string        `toml:"probe_policy" yaml:"probe_policy" env:"MCP_PROBE_POLICY"`
	MaxMessageBytes     int64         `toml:"max_message_bytes" yaml:"max_message_bytes" env:"MCP_MAX_MESSAGE_BYTES"`

	ContentDir    string `toml:"content_dir" yaml:"content_dir" env:"MCP_CONTENT_DIR"`
	ContentPolicy string `toml:"content_policy" yaml:"content_policy" env:"MCP_CONTENT_POLICY"`

	LogLevel  string `toml:"log_level" yaml:"log_level" env:"MCP_LOG_LEVEL"`
	LogFormat string `toml:"log_format" yaml:"log_format" env:"MCP_LOG_FORMAT"`

	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" env:"MCP_SHUTDOWN_TIMEOUT"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		ServerName:      "mcp-sse-server",
		ServerVersion:   "dev",
		SSEPath:         ssehttp.DefaultSSEPath,
		MessagePath:     ssehttp.DefaultMessagePath,
		MetricsPath:     "/metrics",
		KeepAlive:       25 * time.Second,
		ProbePolicy:     string(ssehttp.ProbeReject),
		MaxMessageBytes: ssehttp.DefaultMaxMessageBytes,
		ContentPolicy:   string(content.PolicyPlaceholder),
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds a Config from defaults, the file at path (if non-empty) and
// the environment. The file format is chosen by extension.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("load config %s: unsupported format (want .toml, .yaml or .yml)", path)
	}
	return nil
}

// loadEnv overlays MCP_* variables. Unset variables leave fields alone.
func (c *Config) loadEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("load config from environment: %w", err)
	}
	return nil
}

// AddFlags registers the command-line overrides on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "listen address (default :8080)")
	fs.String("base-url", "", "public base URL used for absolute endpoint events")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: json or text")
	fs.String("content-dir", "", "directory holding widget templates (default: embedded assets)")
}

// ApplyFlags copies flags that were set on the command line into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	targets := map[string]*string{
		"addr":        &c.Addr,
		"base-url":    &c.BaseURL,
		"log-level":   &c.LogLevel,
		"log-format":  &c.LogFormat,
		"content-dir": &c.ContentDir,
	}
	for name, dst := range targets {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("base_url %q must be an absolute URL", c.BaseURL))
		}
	}
	for name, p := range map[string]string{"sse_path": c.SSEPath, "message_path": c.MessagePath} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s %q must start with /", name, p))
		}
	}
	if c.SSEPath == c.MessagePath {
		errs = append(errs, fmt.Errorf("sse_path and message_path must differ"))
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("metrics_path %q must start with /", c.MetricsPath))
	}
	if c.KeepAlive < 0 {
		errs = append(errs, errors.New("keep_alive must not be negative"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if _, err := ssehttp.ParseProbePolicy(c.ProbePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := content.ParsePolicy(c.ContentPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json or text", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
