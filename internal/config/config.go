// Package config loads the settings the commands share: a YAML file,
// then environment overrides. Flags are applied by each command on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/client"
)

// FileName is looked up in auth.ConfigDir when no path is given
const FileName = "config.yaml"

// NoTokenFile disables token persistence
const NoTokenFile = "-"

// Environment overrides
const (
	EnvAPIKey    = "ODESK_API_KEY"
	EnvAPISecret = "ODESK_API_SECRET"
	EnvUser      = "ODESK_USER"
	EnvPass      = "ODESK_PASS"
	EnvMode      = "ODESK_MODE"
	EnvProxy     = "ODESK_PROXY"
)

// Config mirrors the YAML file
type Config struct {
	AppKey   string `yaml:"app_key"`
	Secret   string `yaml:"secret"`
	Mode     string `yaml:"mode"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	CookieFile         string `yaml:"cookie_file"`
	TokenFile          string `yaml:"token_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	Proxy struct {
		URL         string `yaml:"url"`
		Credentials string `yaml:"credentials"`
	} `yaml:"proxy"`

	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	ReauthOnUnauthorized bool          `yaml:"reauth_on_unauthorized"`

	Endpoints struct {
		Login  string `yaml:"login"`
		Auth   string `yaml:"auth"`
		Frobs  string `yaml:"frobs"`
		Tokens string `yaml:"tokens"`
	} `yaml:"endpoints"`

	Callback struct {
		Addr string `yaml:"addr"`
		Path string `yaml:"path"`
	} `yaml:"callback"`

	Web struct {
		Listen       string `yaml:"listen"`
		CookieSecure bool   `yaml:"cookie_secure"`
	} `yaml:"web"`
}

// DefaultPath is the config file used when none is named
func DefaultPath() string {
	return filepath.Join(auth.ConfigDir(), FileName)
}

// Load reads path, or DefaultPath when path is empty, and applies the
// environment. A missing default file is not an error; a missing named
// file is.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		EnvAPIKey:    &c.AppKey,
		EnvAPISecret: &c.Secret,
		EnvUser:      &c.Username,
		EnvPass:      &c.Password,
		EnvMode:      &c.Mode,
		EnvProxy:     &c.Proxy.URL,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*field = v
		}
	}
}

// Save writes c to path as YAML, creating the directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// TokenPath is where the token is persisted, or "" when disabled
func (c *Config) TokenPath() string {
	switch strings.TrimSpace(c.TokenFile) {
	case NoTokenFile:
		return ""
	case "":
		if c.AppKey == "" {
			return ""
		}
		return auth.DefaultTokenPath(c.AppKey)
	default:
		return c.TokenFile
	}
}

// ClientConfig converts c for client.New
func (c *Config) ClientConfig() client.Config {
	cc := client.Config{
		AppKey:               c.AppKey,
		Secret:               c.Secret,
		Mode:                 auth.Mode(strings.ToLower(strings.TrimSpace(c.Mode))),
		Username:             c.Username,
		Password:             c.Password,
		InsecureSkipVerify:   c.InsecureSkipVerify,
		CookieFile:           c.CookieFile,
		Proxy:                c.Proxy.URL,
		ProxyCredentials:     c.Proxy.Credentials,
		Timeout:              c.Timeout,
		MaxRetries:           c.MaxRetries,
		RetryDelay:           c.RetryDelay,
		ReauthOnUnauthorized: c.ReauthOnUnauthorized,
		Endpoints: auth.Endpoints{
			Login:  c.Endpoints.Login,
			Auth:   c.Endpoints.Auth,
			Frobs:  c.Endpoints.Frobs,
			Tokens: c.Endpoints.Tokens,
		},
	}
	if path := c.TokenPath(); path != "" {
		cc.TokenStore = auth.NewFileTokenStore(path)
	}
	return cc
}

// CallbackOptions converts the callback section for auth.BrowserAuthorize
func (c *Config) CallbackOptions() auth.CallbackOptions {
	return auth.CallbackOptions{
		Addr: c.Callback.Addr,
		Path: c.Callback.Path,
	}
}
