package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAccountsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}
	return path
}

func setClientEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("OTP_REDIRECT_URL", "")
	t.Setenv("OTP_EXTERNAL_HOST", "")
}

const twoAccounts = `
accounts:
  - email: shop@example.com
    name: Shop
  - email: personal@example.com
    name: Personal
`

func TestLoadFile(t *testing.T) {
	setClientEnv(t)
	path := writeAccountsFile(t, twoAccounts)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(cfg.Accounts))
	}
	if cfg.Accounts[0].Email != "shop@example.com" || cfg.Accounts[0].Name != "Shop" {
		t.Fatalf("first account wrong: %+v", cfg.Accounts[0])
	}
	if cfg.ClientID != "client-id" || cfg.ClientSecret != "client-secret" {
		t.Fatal("client identity not picked up")
	}
	if cfg.TokensDir != DefaultTokensDir || cfg.DBPath != DefaultDBPath {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFileRejectsBadConfig(t *testing.T) {
	setClientEnv(t)
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "no accounts", content: "accounts: []", wantErr: "no accounts"},
		{name: "empty email", content: "accounts:\n  - name: X", wantErr: "empty email"},
		{name: "duplicate", content: "accounts:\n  - email: a@b.c\n  - email: a@b.c", wantErr: "duplicate"},
		{name: "not yaml", content: "{{{", wantErr: "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeAccountsFile(t, tt.content)
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFileRequiresClientIdentity(t *testing.T) {
	setClientEnv(t)
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	path := writeAccountsFile(t, twoAccounts)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error without client secret")
	}
}

func TestRedirectURLResolution(t *testing.T) {
	setClientEnv(t)
	path := writeAccountsFile(t, twoAccounts)

	t.Run("local default", func(t *testing.T) {
		t.Setenv("PORT", "9999")
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.RedirectURL != "http://localhost:9999/oauth2callback" {
			t.Fatalf("got %q", cfg.RedirectURL)
		}
	})

	t.Run("external host", func(t *testing.T) {
		t.Setenv("OTP_EXTERNAL_HOST", "otp.example.com")
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.RedirectURL != "https://otp.example.com/oauth2callback" {
			t.Fatalf("got %q", cfg.RedirectURL)
		}
	})

	t.Run("explicit override wins", func(t *testing.T) {
		t.Setenv("OTP_EXTERNAL_HOST", "otp.example.com")
		t.Setenv("OTP_REDIRECT_URL", "https://elsewhere.example.com/cb")
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.RedirectURL != "https://elsewhere.example.com/cb" {
			t.Fatalf("got %q", cfg.RedirectURL)
		}
	})
}

func TestMissingAccountsFile(t *testing.T) {
	setClientEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
