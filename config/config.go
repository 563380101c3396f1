package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hjtapia74/agiloft-api-example/session"
)

// Supported auth method names.
const (
	AuthMethodLegacy            = "legacy"
	AuthMethodOAuth2            = "oauth2_client_credentials"
	AuthMethodAuthorizationCode = "oauth2_authorization_code"
)

// DefaultConfigFile is the config file loaded when no path is given.
const DefaultConfigFile = "config.yaml"

// OAuth2Config holds the OAuth2 settings.
type OAuth2Config struct {
	ClientID              string `yaml:"client_id"`
	ClientSecret          string `yaml:"client_secret"`
	TokenEndpoint         string `yaml:"token_endpoint"`
	AuthorizationEndpoint string `yaml:"authorization_endpoint"`
	RedirectURI           string `yaml:"redirect_uri"`
	Scope                 string `yaml:"scope"`
}

// AgiloftConfig holds the connection and credential settings.
type AgiloftConfig struct {
	BaseURL    string       `yaml:"base_url"`
	KB         string       `yaml:"kb"`
	Language   string       `yaml:"language"`
	AuthMethod string       `yaml:"auth_method"`
	Username   string       `yaml:"username"`
	Password   string       `yaml:"password"`
	OAuth2     OAuth2Config `yaml:"oauth2"`
}

// Config is the root configuration. Values are layered with precedence
// environment variable > config file > default.
type Config struct {
	Agiloft AgiloftConfig `yaml:"agiloft"`
}

// defaults returns the lowest-precedence configuration layer.
func defaults() Config {
	return Config{
		Agiloft: AgiloftConfig{
			Language:   "en",
			AuthMethod: AuthMethodLegacy,
			OAuth2: OAuth2Config{
				RedirectURI: "http://localhost:8080/callback",
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// it exists; an empty path means DefaultConfigFile), and AGILOFT_*
// environment variables, in increasing precedence. A present but malformed
// file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ValidationError{Path: path, Err: fmt.Errorf("parse config file: %w", err)}
		}
	case errors.Is(err, os.ErrNotExist):
		// No file: defaults plus environment.
	default:
		return nil, &ValidationError{Path: path, Err: fmt.Errorf("read config file: %w", err)}
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv overrides settings from AGILOFT_* environment variables.
func (c *Config) applyEnv() {
	for env, target := range map[string]*string{
		"AGILOFT_BASE_URL":                      &c.Agiloft.BaseURL,
		"AGILOFT_KB":                            &c.Agiloft.KB,
		"AGILOFT_LANGUAGE":                      &c.Agiloft.Language,
		"AGILOFT_AUTH_METHOD":                   &c.Agiloft.AuthMethod,
		"AGILOFT_USERNAME":                      &c.Agiloft.Username,
		"AGILOFT_PASSWORD":                      &c.Agiloft.Password,
		"AGILOFT_OAUTH2_CLIENT_ID":              &c.Agiloft.OAuth2.ClientID,
		"AGILOFT_OAUTH2_CLIENT_SECRET":          &c.Agiloft.OAuth2.ClientSecret,
		"AGILOFT_OAUTH2_TOKEN_ENDPOINT":         &c.Agiloft.OAuth2.TokenEndpoint,
		"AGILOFT_OAUTH2_AUTHORIZATION_ENDPOINT": &c.Agiloft.OAuth2.AuthorizationEndpoint,
		"AGILOFT_OAUTH2_REDIRECT_URI":           &c.Agiloft.OAuth2.RedirectURI,
		"AGILOFT_OAUTH2_SCOPE":                  &c.Agiloft.OAuth2.Scope,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*target = v
		}
	}
}

// Validate checks that every setting the configured auth method needs is
// present. It runs before any network call and reports all missing fields
// at once.
func (c *Config) Validate() error {
	required := map[string]string{
		"agiloft.base_url": c.Agiloft.BaseURL,
		"agiloft.kb":       c.Agiloft.KB,
	}

	switch c.Agiloft.AuthMethod {
	case AuthMethodLegacy:
		required["agiloft.username"] = c.Agiloft.Username
		required["agiloft.password"] = c.Agiloft.Password
	case AuthMethodOAuth2:
		required["agiloft.oauth2.client_id"] = c.Agiloft.OAuth2.ClientID
		required["agiloft.oauth2.client_secret"] = c.Agiloft.OAuth2.ClientSecret
		required["agiloft.oauth2.token_endpoint"] = c.Agiloft.OAuth2.TokenEndpoint
	case AuthMethodAuthorizationCode:
		required["agiloft.oauth2.client_id"] = c.Agiloft.OAuth2.ClientID
		required["agiloft.oauth2.authorization_endpoint"] = c.Agiloft.OAuth2.AuthorizationEndpoint
		required["agiloft.oauth2.redirect_uri"] = c.Agiloft.OAuth2.RedirectURI
	default:
		return &ValidationError{Err: fmt.Errorf("unknown auth method %q", c.Agiloft.AuthMethod)}
	}

	var missing []string
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Credentials maps the configured auth method to the session credentials
// variant. The authorization-code method has no non-interactive credentials;
// use the authcode package to seed the session instead.
func (c *Config) Credentials() (session.Credentials, error) {
	switch c.Agiloft.AuthMethod {
	case AuthMethodLegacy:
		return session.LegacyCredentials{
			BaseURL:  c.Agiloft.BaseURL,
			Username: c.Agiloft.Username,
			Password: c.Agiloft.Password,
			KB:       c.Agiloft.KB,
			Language: c.Agiloft.Language,
		}, nil
	case AuthMethodOAuth2:
		return session.OAuth2Credentials{
			ClientID:     c.Agiloft.OAuth2.ClientID,
			ClientSecret: c.Agiloft.OAuth2.ClientSecret,
			TokenURL:     c.Agiloft.OAuth2.TokenEndpoint,
			KB:           c.Agiloft.KB,
			Scope:        c.Agiloft.OAuth2.Scope,
		}, nil
	default:
		return nil, &ValidationError{Err: fmt.Errorf("auth method %q has no non-interactive credentials", c.Agiloft.AuthMethod)}
	}
}

// String renders the configuration with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Agiloft.Password != "" {
		masked.Agiloft.Password = "***masked***"
	}
	if masked.Agiloft.OAuth2.ClientSecret != "" {
		masked.Agiloft.OAuth2.ClientSecret = "***masked***"
	}

	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return strings.TrimSpace(string(out))
}
