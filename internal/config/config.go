// Package config loads webscrobbler settings with viper.
//
// Settings come from ~/.config/webscrobbler/config.yaml (or ./config.yaml,
// or the file given with --config) and can be overridden with
// WEBSCROBBLER_* environment variables, e.g. WEBSCROBBLER_LOG_LEVEL or
// WEBSCROBBLER_SERVICES_LASTFM_API_KEY.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
	"github.com/spf13/viper"
)

const (
	appName   = "webscrobbler"
	envPrefix = "WEBSCROBBLER"
)

// Config holds application configuration
type Config struct {
	LogLevel        string        // debug, info, warn, error
	DataDir         string        // State, queue and credential store
	Service         string        // Default service for single-service commands
	ProcessInterval time.Duration // How often the daemon flushes the queue

	// Output of the now command
	OutputFormat     string // Go template over the current play
	OutputWidth      int    // Fixed width in display columns, 0 disables
	MarqueeEnabled   bool   // Scroll text longer than OutputWidth
	MarqueeSpeed     int    // Columns per second
	MarqueeSeparator string // Between the end and the restart of the text

	Services []ServiceConfig

	path string
}

// ServiceConfig is one audioscrobbler-compatible service.
type ServiceConfig struct {
	Name         string // Key under services, e.g. "lastfm"
	Label        string // Display label and credential namespace, e.g. "Last.fm"
	APIKey       string
	APISecret    string
	APIURL       string
	AuthURL      string
	ProfileURL   string
	TokenTimeout time.Duration
}

// Enabled reports whether the service has API credentials.
func (s ServiceConfig) Enabled() bool {
	return s.APIKey != "" && s.APISecret != ""
}

// Endpoints returns the service endpoints.
func (s ServiceConfig) Endpoints() lastfm.Endpoints {
	return lastfm.Endpoints{
		APIURL:     s.APIURL,
		AuthURL:    s.AuthURL,
		ProfileURL: s.ProfileURL,
	}
}

// builtinServices are always known, with or without credentials.
var builtinServices = map[string]struct {
	label     string
	endpoints lastfm.Endpoints
}{
	"lastfm":  {label: "Last.fm", endpoints: lastfm.LastFM},
	"librefm": {label: "Libre.fm", endpoints: lastfm.LibreFM},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("service", "lastfm")
	v.SetDefault("process_interval", 30*time.Second)

	v.SetDefault("output_format", "{{.Artist}} - {{.Track}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 1)
	v.SetDefault("marquee_separator", " • ")

	for name, svc := range builtinServices {
		prefix := "services." + name + "."
		v.SetDefault(prefix+"label", svc.label)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"api_secret", "")
		v.SetDefault(prefix+"api_url", svc.endpoints.APIURL)
		v.SetDefault(prefix+"auth_url", svc.endpoints.AuthURL)
		v.SetDefault(prefix+"profile_url", svc.endpoints.ProfileURL)
		v.SetDefault(prefix+"token_timeout", lastfm.DefaultTokenTimeout)
	}
}

// Load reads configuration from configFile, or from the default
// locations when it is empty, and from the environment. A missing file is
// not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		LogLevel:         v.GetString("log_level"),
		DataDir:          expandHome(v.GetString("data_dir")),
		Service:          v.GetString("service"),
		ProcessInterval:  v.GetDuration("process_interval"),
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		path:             v.ConfigFileUsed(),
	}
	if configFile != "" {
		cfg.path = configFile
	}

	for _, name := range serviceNames(v) {
		prefix := "services." + name + "."
		cfg.Services = append(cfg.Services, ServiceConfig{
			Name:         name,
			Label:        v.GetString(prefix + "label"),
			APIKey:       v.GetString(prefix + "api_key"),
			APISecret:    v.GetString(prefix + "api_secret"),
			APIURL:       v.GetString(prefix + "api_url"),
			AuthURL:      v.GetString(prefix + "auth_url"),
			ProfileURL:   v.GetString(prefix + "profile_url"),
			TokenTimeout: v.GetDuration(prefix + "token_timeout"),
		})
	}

	for i := range cfg.Services {
		if cfg.Services[i].Label == "" {
			cfg.Services[i].Label = cfg.Services[i].Name
		}
	}

	return cfg, nil
}

// serviceNames returns builtin and configured service keys, sorted.
func serviceNames(v *viper.Viper) []string {
	seen := map[string]bool{}
	for name := range builtinServices {
		seen[name] = true
	}
	for name := range v.GetStringMap("services") {
		seen[strings.ToLower(name)] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledServices returns the services that have credentials.
func (c *Config) EnabledServices() []ServiceConfig {
	var out []ServiceConfig
	for _, s := range c.Services {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

// FindService looks a service up by key or label, ignoring case.
func (c *Config) FindService(nameOrLabel string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if strings.EqualFold(s.Name, nameOrLabel) || strings.EqualFold(s.Label, nameOrLabel) {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// Path returns the file the configuration was read from, or the file Save
// will write when none was found.
func (c *Config) Path() string {
	if c.path != "" {
		return c.path
	}
	return filepath.Join(getConfigDir(), "config.yaml")
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	v.Set("log_level", c.LogLevel)
	v.Set("data_dir", c.DataDir)
	v.Set("service", c.Service)
	v.Set("process_interval", c.ProcessInterval.String())
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)

	for _, s := range c.Services {
		prefix := "services." + s.Name + "."
		v.Set(prefix+"label", s.Label)
		v.Set(prefix+"api_key", s.APIKey)
		v.Set(prefix+"api_secret", s.APISecret)
		v.Set(prefix+"api_url", s.APIURL)
		v.Set(prefix+"auth_url", s.AuthURL)
		v.Set(prefix+"profile_url", s.ProfileURL)
		v.Set(prefix+"token_timeout", s.TokenTimeout.String())
	}

	path := c.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	c.path = path
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", appName)
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(homeDir, ".local", "share", appName)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
