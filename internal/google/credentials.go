package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned by TokenStore.Load when no token file exists.
var ErrNoToken = fmt.Errorf("no stored token: %w", fs.ErrNotExist)

// LoadOAuthConfig reads an installed-app client secret file and returns the
// OAuth2 configuration for the given scopes.
func LoadOAuthConfig(path string, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &AuthError{
				Reason: ReasonMissingClientSecret,
				Err:    fmt.Errorf("credentials file not found: %s (set GOOGLE_CLIENT_SECRET_PATH)", path),
			}
		}
		return nil, &AuthError{Reason: ReasonMissingClientSecret, Err: fmt.Errorf("failed to read %s: %w", path, err)}
	}

	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, &AuthError{Reason: ReasonMissingClientSecret, Err: fmt.Errorf("failed to parse %s: %w", path, err)}
	}
	return conf, nil
}

// tokenFile is the on-disk token layout. The "token" key is accepted on
// read for compatibility with google-auth authorized-user files.
type tokenFile struct {
	AccessToken  string     `json:"access_token,omitempty"`
	Token        string     `json:"token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// TokenStore persists a single OAuth token as JSON.
type TokenStore struct {
	path string
}

// NewTokenStore returns a store backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Exists reports whether a token file is present.
func (s *TokenStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the stored token. It returns ErrNoToken when the file is absent.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}

	tok := &oauth2.Token{
		AccessToken:  tf.AccessToken,
		TokenType:    tf.TokenType,
		RefreshToken: tf.RefreshToken,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = tf.Token
	}
	if tf.Expiry != nil {
		tok.Expiry = *tf.Expiry
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds neither an access nor a refresh token", s.path)
	}
	return tok, nil
}

// Save writes tok atomically: a temporary file in the same directory is
// written, synced and renamed over the target. The file mode is 0600.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	tf := tokenFile{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		tf.Expiry = &expiry
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
