package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "snpublisher"
	keyringPrefix  = "instagram_"
	keyringIndex   = "account_index"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	// Test if keyring is available
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	key := keyringPrefix + account.Username
	if err := keyring.Set(keyringService, key, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return k.addToIndex(account.Username)
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+username)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// List returns all accounts recorded in the keyring index
func (k *KeyringStore) List() ([]*Account, error) {
	usernames, err := k.readIndex()
	if err != nil {
		return nil, err
	}

	var accounts []*Account
	for _, username := range usernames {
		account, err := k.Retrieve(username)
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	if err := keyring.Delete(keyringService, keyringPrefix+username); err != nil {
		if err == keyring.ErrNotFound {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.removeFromIndex(username)
}

// Exists checks if credentials exist for a username
func (k *KeyringStore) Exists(username string) bool {
	_, err := keyring.Get(keyringService, keyringPrefix+username)
	return err == nil
}

// The keyring has no enumeration API, so usernames are tracked in a
// separate comma-separated index entry.

func (k *KeyringStore) readIndex() ([]string, error) {
	raw, err := keyring.Get(keyringService, keyringIndex)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}

	var usernames []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			usernames = append(usernames, name)
		}
	}
	return usernames, nil
}

func (k *KeyringStore) addToIndex(username string) error {
	usernames, err := k.readIndex()
	if err != nil {
		return err
	}
	for _, name := range usernames {
		if name == username {
			return nil
		}
	}
	usernames = append(usernames, username)
	return keyring.Set(keyringService, keyringIndex, strings.Join(usernames, ","))
}

func (k *KeyringStore) removeFromIndex(username string) error {
	usernames, err := k.readIndex()
	if err != nil {
		return err
	}
	var kept []string
	for _, name := range usernames {
		if name != username {
			kept = append(kept, name)
		}
	}
	return keyring.Set(keyringService, keyringIndex, strings.Join(kept, ","))
}
