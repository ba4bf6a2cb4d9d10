package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Common credential store errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

// Account represents an Instagram account's login credentials
type Account struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific username
	Retrieve(username string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific username
	Delete(username string) error

	// Exists checks if credentials exist for a username
	Exists(username string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a new credential manager. The system keyring is
// preferred; the encrypted file store and environment variables serve as
// fallbacks.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err == nil {
		stores = append(stores, encryptedStore)
	}

	stores = append(stores, NewEnvironmentStore())

	if len(stores) == 0 {
		return nil, ErrStoreUnavailable
	}

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores (for tests)
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the account to the first store that accepts it
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = ErrStoreUnavailable
	}
	return fmt.Errorf("failed to store credentials: %w", lastErr)
}

// Retrieve returns the account from the first store that has it
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, store := range m.stores {
		account, err := store.Retrieve(username)
		if err == nil {
			return account, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// List aggregates accounts across all stores, deduplicated by username
func (m *Manager) List() ([]*Account, error) {
	seen := make(map[string]bool)
	var accounts []*Account

	for _, store := range m.stores {
		stored, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range stored {
			if !seen[account.Username] {
				seen[account.Username] = true
				accounts = append(accounts, account)
			}
		}
	}
	return accounts, nil
}

// Delete removes the account from every store that has it
func (m *Manager) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	deleted := false
	for _, store := range m.stores {
		if store.Exists(username) {
			if err := store.Delete(username); err == nil {
				deleted = true
			}
		}
	}
	if !deleted {
		return ErrCredentialsNotFound
	}
	return nil
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	dir := filepath.Join(base, "snpublisher")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}
