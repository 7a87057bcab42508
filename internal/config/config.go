// Package config loads the static account list and provider client identity.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAccountsFile = "accounts.yaml"
	DefaultTokensDir    = "tokens"
	DefaultDBPath       = "otps.db"
	DefaultPort         = "8080"
)

// Account identifies one mailbox to authorize and fetch from.
// The list is fixed for the process lifetime.
type Account struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

type fileConfig struct {
	Accounts []Account `yaml:"accounts"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Accounts     []Account
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Host         string
	Port         string
	TokensDir    string
	DBPath       string
}

// Load reads the accounts file and resolves the rest from the environment.
// A missing client identity is fatal: without it no account can be authorized.
func Load() (*Config, error) {
	path := os.Getenv("OTP_ACCOUNTS_FILE")
	if path == "" {
		path = DefaultAccountsFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit accounts file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	if len(fc.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s lists no accounts", path)
	}
	seen := make(map[string]bool, len(fc.Accounts))
	for _, acc := range fc.Accounts {
		if acc.Email == "" {
			return nil, fmt.Errorf("accounts file %s: account with empty email", path)
		}
		if seen[acc.Email] {
			return nil, fmt.Errorf("accounts file %s: duplicate account %s", path, acc.Email)
		}
		seen[acc.Email] = true
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}

	cfg := &Config{
		Accounts:     fc.Accounts,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Host:         os.Getenv("HOST"),
		Port:         os.Getenv("PORT"),
		TokensDir:    os.Getenv("OTP_TOKENS_DIR"),
		DBPath:       os.Getenv("OTP_DB"),
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.TokensDir == "" {
		cfg.TokensDir = DefaultTokensDir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.RedirectURL = resolveRedirectURL(cfg.Port)
	return cfg, nil
}

// resolveRedirectURL picks the callback target: explicit override beats the
// external production host, which beats the local default.
func resolveRedirectURL(port string) string {
	if url := os.Getenv("OTP_REDIRECT_URL"); url != "" {
		return url
	}
	if host := os.Getenv("OTP_EXTERNAL_HOST"); host != "" {
		return fmt.Sprintf("https://%s/oauth2callback", host)
	}
	return fmt.Sprintf("http://localhost:%s/oauth2callback", port)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
