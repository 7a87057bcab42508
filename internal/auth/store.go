package auth

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// Store persists one token file per account under a single directory.
// The file on disk is the source of truth; callers re-load at the start of
// each use rather than caching across uses.
type Store struct {
	dir string
}

// NewStore creates the tokens directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create tokens dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load returns the stored token for the account, or (nil, nil) when none
// exists. A corrupt file is logged and treated as absent so the account
// simply goes through consent again.
func (s *Store) Load(accountID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token for %s: %w", accountID, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		log.Printf("[OAuth] Corrupt token file for %s, re-consent required: %v", accountID, err)
		return nil, nil
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		log.Printf("[OAuth] Empty token file for %s, re-consent required", accountID)
		return nil, nil
	}
	return &tok, nil
}

// Save writes the token atomically: a partially written file is never
// visible under the account's name.
func (s *Store) Save(accountID string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token for %s: %w", accountID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "token-*.tmp")
	if err != nil {
		return fmt.Errorf("save token for %s: %w", accountID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save token for %s: %w", accountID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save token for %s: %w", accountID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(accountID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save token for %s: %w", accountID, err)
	}
	return nil
}

func (s *Store) path(accountID string) string {
	return filepath.Join(s.dir, fileKey(accountID)+".json")
}

// fileKey maps an account identifier to a filesystem-safe name: every
// non-alphanumeric byte becomes an underscore.
func fileKey(accountID string) string {
	out := []byte(accountID)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
