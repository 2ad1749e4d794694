// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultProxyType           = "none"
	DefaultFetchTimeout        = 10  // seconds
	DefaultPacExecutionTimeout = 5   // seconds
	DefaultPacRefreshInterval  = 300 // seconds
	DefaultDNSTimeout          = 2   // seconds
	DefaultLogLevel            = "info"
	EnvPrefix                  = "PACSELECT"
)

// Proxy configuration types.
const (
	TypeNone  = "none"  // always DIRECT
	TypeFixed = "fixed" // manual per-scheme settings
	TypePAC   = "pac"   // PAC script from a URL or file
	TypeEnv   = "env"   // HTTP_PROXY / HTTPS_PROXY / NO_PROXY
)

// Config holds the main application configuration.
type Config struct {
	Proxy    ProxyConfig `mapstructure:"proxy"`
	LogLevel string      `mapstructure:"log_level"`
	LogPath  string      `mapstructure:"log_path"`
}

// ProxyConfig is the raw proxy configuration handed over by whatever
// discovered it (OS settings, browser profile, operator).
type ProxyConfig struct {
	Type                string `mapstructure:"type"`                  // none, fixed, pac, env
	PacURL              string `mapstructure:"pac_url"`               // For type=pac: http(s)://, file:// or a path
	Fixed               string `mapstructure:"fixed"`                 // For type=fixed: "http=p1:80;https=p2:443" or "p:8080"
	Bypass              string `mapstructure:"bypass"`                // "<local>;*.corp.example;10.0.0.0/8"
	Safe                bool   `mapstructure:"safe"`                  // Strip sensitive URL parts before the PAC script sees them
	FetchTimeout        int    `mapstructure:"fetch_timeout"`         // PAC download timeout (seconds)
	PacExecutionTimeout int    `mapstructure:"pac_execution_timeout"` // Max time for one FindProxyForURL call (seconds)
	PacRefreshInterval  int    `mapstructure:"pac_refresh_interval"`  // How long a downloaded PAC is trusted (seconds)
	DNSTimeout          int    `mapstructure:"dns_timeout"`           // Bound for dnsResolve & friends (seconds)
	PacCharset          string `mapstructure:"pac_charset"`           // Optional: charset override for the PAC file
	OverrideLocalIP     string `mapstructure:"override_local_ip"`     // Optional: fixed myIpAddress() result
}

// FetchTimeoutDuration returns FetchTimeout as a time.Duration.
func (c ProxyConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// ExecTimeoutDuration returns PacExecutionTimeout as a time.Duration.
func (c ProxyConfig) ExecTimeoutDuration() time.Duration {
	return time.Duration(c.PacExecutionTimeout) * time.Second
}

// RefreshIntervalDuration returns PacRefreshInterval as a time.Duration.
func (c ProxyConfig) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.PacRefreshInterval) * time.Second
}

// DNSTimeoutDuration returns DNSTimeout as a time.Duration.
func (c ProxyConfig) DNSTimeoutDuration() time.Duration {
	return time.Duration(c.DNSTimeout) * time.Second
}

// LoadConfig reads configuration from a file, environment variables, and
// defaults. An empty path skips the file.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// PACSELECT_PROXY_TYPE, PACSELECT_PROXY_PAC_URL, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			slog.Warn("Could not get absolute config path, using provided path", "path", configPath, "error", err)
			absPath = configPath
		}
		v.SetConfigFile(absPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Config file not found, using defaults and environment variables.", "path", absPath)
			} else {
				return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
			}
		} else {
			slog.Info("Loaded configuration file", "path", absPath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	config.Proxy.Type = strings.ToLower(strings.TrimSpace(config.Proxy.Type))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// validateConfig checks the consistency and validity of the configuration.
func validateConfig(cfg *Config) error {
	p := cfg.Proxy
	switch p.Type {
	case TypeNone, TypeEnv:
	case TypeFixed:
		if strings.TrimSpace(p.Fixed) == "" {
			return errors.New("proxy.fixed is required when proxy.type is fixed")
		}
	case TypePAC:
		if strings.TrimSpace(p.PacURL) == "" {
			return errors.New("proxy.pac_url is required when proxy.type is pac")
		}
	default:
		return fmt.Errorf("invalid proxy.type '%s', must be one of: none, fixed, pac, env", p.Type)
	}

	if p.FetchTimeout <= 0 {
		return errors.New("proxy.fetch_timeout must be a positive number of seconds")
	}
	if p.PacExecutionTimeout <= 0 {
		return errors.New("proxy.pac_execution_timeout must be positive")
	}
	if p.PacRefreshInterval <= 0 {
		return errors.New("proxy.pac_refresh_interval must be positive")
	}
	if p.DNSTimeout <= 0 {
		return errors.New("proxy.dns_timeout must be positive")
	}
	return nil
}

// setDefaults configures the default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.type", DefaultProxyType)
	v.SetDefault("proxy.pac_url", "")
	v.SetDefault("proxy.fixed", "")
	v.SetDefault("proxy.bypass", "")
	v.SetDefault("proxy.safe", true)
	v.SetDefault("proxy.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("proxy.pac_execution_timeout", DefaultPacExecutionTimeout)
	v.SetDefault("proxy.pac_refresh_interval", DefaultPacRefreshInterval)
	v.SetDefault("proxy.dns_timeout", DefaultDNSTimeout)
	v.SetDefault("proxy.pac_charset", "") // detect from Content-Type / BOM
	v.SetDefault("proxy.override_local_ip", "")

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_path", "")
}
