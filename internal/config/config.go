package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/multierr"
)

// EnvPrefix prefixes environment overrides, e.g. TASKDECK_API_BASE_URL.
const EnvPrefix = "TASKDECK_"

// Config represents the client configuration
type Config struct {
	API struct {
		BaseURL   string        `koanf:"base_url"`
		Timeout   time.Duration `koanf:"timeout"`
		RateLimit float64       `koanf:"rate_limit"`
		RateBurst int           `koanf:"rate_burst"`
	} `koanf:"api"`

	Credentials struct {
		File string `koanf:"file"`
	} `koanf:"credentials"`

	Session struct {
		ExpiryThreshold time.Duration `koanf:"expiry_threshold"`
	} `koanf:"session"`
}

// DefaultPaths are searched in order when no config file is given.
var DefaultPaths = []string{"./taskdeck.toml", "$HOME/.taskdeck.toml"}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":             "http://localhost:8000/api",
		"api.timeout":              "15s",
		"api.rate_limit":           0,
		"api.rate_burst":           1,
		"credentials.file":         defaultCredentialsFile(),
		"session.expiry_threshold": "2m",
	}
}

func defaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskdeck/credentials.json"
	}
	return filepath.Join(home, ".taskdeck", "credentials.json")
}

// envKey maps TASKDECK_API_BASE_URL to api.base_url: only the first
// underscore separates the section.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// LoadConfig loads defaults, then the TOML file, then environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	config.Credentials.File = os.ExpandEnv(config.Credentials.File)

	return &config, nil
}

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# taskdeck configuration

[api]
base_url = "http://localhost:8000/api"
timeout = "15s"
# Client-side pacing in requests per second; 0 disables it.
rate_limit = 0
rate_burst = 1

[credentials]
file = "$HOME/.taskdeck/credentials.json"

[session]
expiry_threshold = "2m"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration and reports every problem found.
func Validate(config *Config) error {
	var errs error

	if config.API.BaseURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("api base_url is required"))
	} else if u, err := url.Parse(config.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("api base_url must be an absolute http(s) URL, got %q", config.API.BaseURL))
	}

	if config.API.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("api timeout must be positive"))
	}

	if config.API.RateLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("api rate_limit must not be negative"))
	}
	if config.API.RateLimit > 0 && config.API.RateBurst < 1 {
		errs = multierr.Append(errs, fmt.Errorf("api rate_burst must be at least 1 when rate_limit is set"))
	}

	if config.Credentials.File == "" {
		errs = multierr.Append(errs, fmt.Errorf("credentials file is required"))
	}

	if config.Session.ExpiryThreshold < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session expiry_threshold must not be negative"))
	}

	return errs
}
