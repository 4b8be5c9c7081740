package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultCredentialID is the credential slot the sync engine reads.
const DefaultCredentialID = "openai"

// CredentialStore manages API credentials, persisted as a plain-text TOML
// file with 0600 permissions in the data directory.
type CredentialStore struct {
	credentials map[string]string // providerID → API key
}

// NewCredentialStore creates an empty credential store
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		credentials: make(map[string]string),
	}
}

// Load loads credentials from disk. A missing file is not an error: the
// store stays empty and Send is blocked until a key is set.
func (c *CredentialStore) Load(dataDir string) error {
	path := credentialsPath(dataDir)

	if !FileExists(path) {
		c.credentials = make(map[string]string)
		return nil
	}

	type credentialsFile struct {
		Credentials map[string]string `toml:"credentials"`
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if cf.Credentials == nil {
		cf.Credentials = make(map[string]string)
	}
	c.credentials = cf.Credentials
	return nil
}

// Save saves credentials to disk with 0600 permissions
func (c *CredentialStore) Save(dataDir string) error {
	type credentialsFile struct {
		Credentials map[string]string `toml:"credentials"`
	}

	cf := credentialsFile{Credentials: c.credentials}

	f, err := os.OpenFile(credentialsPath(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cf); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	return nil
}

// Get retrieves a credential for a provider
func (c *CredentialStore) Get(providerID string) string {
	return c.credentials[providerID]
}

// Set stores a credential for a provider
func (c *CredentialStore) Set(providerID string, apiKey string) {
	c.credentials[providerID] = apiKey
}

// Delete removes a credential for a provider
func (c *CredentialStore) Delete(providerID string) {
	delete(c.credentials, providerID)
}

// APIKey returns the default endpoint credential. Implements the sync
// engine's CredentialSource.
func (c *CredentialStore) APIKey() string {
	return c.credentials[DefaultCredentialID]
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}
