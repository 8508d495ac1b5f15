package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
)

// Environment variables consulted before the credentials file, in order.
var tokenEnvVars = []string{"LOGWATCH_API_KEY", "RENDER_API_KEY"}

// TokenSource supplies the bearer token used for REST and streaming calls.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same key.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", errors.NewAuthRejectedError("no API key configured", 0)
	}
	return string(s), nil
}

// Credentials represents a stored API key for one API endpoint
type Credentials struct {
	APIKey    string    `json:"api_key"`
	Owner     string    `json:"owner,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitempty"`
}

// CredentialStore is the on-disk layout of credentials.json. The top-level
// api_key applies to every endpoint without a dedicated entry.
type CredentialStore struct {
	APIKey    string                  `json:"api_key,omitempty"`
	Endpoints map[string]*Credentials `json:"endpoints,omitempty"`
	Version   string                  `json:"version"`
}

// GetCredentialsPath returns the path to the credentials file
func GetCredentialsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".logwatch", "credentials.json"), nil
}

// LoadCredentials reads the credential store at path. A missing file yields
// an empty store.
func LoadCredentials(path string) (*CredentialStore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &CredentialStore{Endpoints: make(map[string]*Credentials), Version: "1.0"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var store CredentialStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if store.Endpoints == nil {
		store.Endpoints = make(map[string]*Credentials)
	}
	if store.Version == "" {
		store.Version = "1.0"
	}
	return &store, nil
}

// GetCredentialsForEndpoint returns unexpired credentials for baseURL,
// falling back to the store-wide key.
func (store *CredentialStore) GetCredentialsForEndpoint(baseURL string) (*Credentials, bool) {
	if creds, ok := store.Endpoints[strings.TrimSuffix(baseURL, "/")]; ok && creds.IsValid() {
		return creds, true
	}
	if store.APIKey != "" {
		return &Credentials{APIKey: store.APIKey}, true
	}
	return nil, false
}

// IsExpired checks if credentials are expired
func (creds *Credentials) IsExpired() bool {
	if creds.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(creds.ExpiresAt)
}

// IsValid checks if credentials are valid (not empty and not expired)
func (creds *Credentials) IsValid() bool {
	if creds == nil || creds.APIKey == "" {
		return false
	}
	return !creds.IsExpired()
}

// FileTokenSource resolves the API key from the environment first, then
// from the credentials file. The file is only ever read.
type FileTokenSource struct {
	Path    string
	BaseURL string
	Getenv  func(string) string
}

// NewTokenSource returns a FileTokenSource for the default credentials path.
func NewTokenSource(baseURL string) (*FileTokenSource, error) {
	path, err := GetCredentialsPath()
	if err != nil {
		return nil, err
	}
	return &FileTokenSource{Path: path, BaseURL: baseURL, Getenv: os.Getenv}, nil
}

// Token implements TokenSource.
func (s *FileTokenSource) Token() (string, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range tokenEnvVars {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v, nil
		}
	}

	store, err := LoadCredentials(s.Path)
	if err != nil {
		return "", err
	}
	creds, ok := store.GetCredentialsForEndpoint(s.BaseURL)
	if !ok {
		return "", errors.NewAuthRejectedError(
			fmt.Sprintf("no API key found; set %s or add api_key to %s", tokenEnvVars[0], s.Path), 0)
	}
	return creds.APIKey, nil
}
