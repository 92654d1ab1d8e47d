package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Default values applied when neither the config file nor the environment set a field
const (
	DefaultCountry                = "nl"
	DefaultHTTPPort               = 8081
	DefaultChannelRefreshSchedule = "0 4 * * *"
	DefaultMetadataRateLimit      = 5.0
	DefaultClientName             = "Home Assistant"
)

// DefaultPlatformTypes are the device platform tags that identify a controllable box
var DefaultPlatformTypes = []string{"EOS", "EOS2"}

// Config is the application configuration
type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Country  string `yaml:"country"`

	HTTPPort int    `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`

	// PlatformTypes is the allow-set of device platform tags turned into boxes
	PlatformTypes []string `yaml:"platform_types"`

	// ChannelRefreshSchedule is a cron expression for catalog reloads
	ChannelRefreshSchedule string `yaml:"channel_refresh_schedule"`

	// MetadataRateLimit caps listing/media-group lookups per second
	MetadataRateLimit float64 `yaml:"metadata_rate_limit"`

	// ClientName is announced as friendlyDeviceName in push-to-TV commands
	ClientName string `yaml:"client_name"`

	MQTTDebug bool `yaml:"mqtt_debug"`

	// Optional endpoint overrides, mostly for tests and staging
	APIBaseURL               string `yaml:"api_base_url"`
	PersonalizationURLFormat string `yaml:"personalization_url_format"`
	MQTTBroker               string `yaml:"mqtt_broker"`
}

// Loader loads configuration from an optional YAML file plus environment overrides
type Loader struct {
	path   string
	logger *zap.Logger
	getenv func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:   path,
		logger: logger,
		getenv: os.Getenv,
	}
}

// Load reads the config file (if present), applies environment overrides and defaults,
// resolves country endpoints and validates the result
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			l.logger.Info("Config file loaded", zap.String("path", l.path))
		case errors.Is(err, os.ErrNotExist):
			l.logger.Debug("No config file found, using environment only", zap.String("path", l.path))
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	l.applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.resolveEndpoints(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.logger.Info("Configuration loaded",
		zap.String("country", cfg.Country),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Strings("platform_types", cfg.PlatformTypes))
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if v := l.getenv("ZIGGO_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := l.getenv("ZIGGO_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := l.getenv("ZIGGO_COUNTRY"); v != "" {
		cfg.Country = strings.ToLower(v)
	}
	if v := l.getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = port
		} else {
			l.logger.Warn("Ignoring invalid HTTP_PORT", zap.String("value", v))
		}
	}
	if v := l.getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := l.getenv("PLATFORM_TYPES"); v != "" {
		cfg.PlatformTypes = splitCSV(v)
	}
	if v := l.getenv("CHANNEL_REFRESH_SCHEDULE"); v != "" {
		cfg.ChannelRefreshSchedule = v
	}
	if v := l.getenv("MQTT_DEBUG"); v != "" {
		cfg.MQTTDebug = v == "true"
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Country == "" {
		cfg.Country = DefaultCountry
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.PlatformTypes) == 0 {
		cfg.PlatformTypes = append([]string(nil), DefaultPlatformTypes...)
	}
	if cfg.ChannelRefreshSchedule == "" {
		cfg.ChannelRefreshSchedule = DefaultChannelRefreshSchedule
	}
	if cfg.MetadataRateLimit <= 0 {
		cfg.MetadataRateLimit = DefaultMetadataRateLimit
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
}

func (c *Config) resolveEndpoints() error {
	ep, err := EndpointsFor(c.Country)
	if err != nil {
		return err
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = ep.APIBaseURL
	}
	if c.PersonalizationURLFormat == "" {
		c.PersonalizationURLFormat = ep.PersonalizationURLFormat
	}
	if c.MQTTBroker == "" {
		c.MQTTBroker = ep.MQTTBroker
	}
	return nil
}

// Validate checks that required fields are set
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("username and password must be set")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if !strings.Contains(c.PersonalizationURLFormat, "%s") {
		return fmt.Errorf("personalization url format must contain %%s")
	}
	return nil
}

// PersonalizationURL returns the device listing URL for a household
func (c *Config) PersonalizationURL(householdID string) string {
	return fmt.Sprintf(c.PersonalizationURLFormat, householdID)
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
