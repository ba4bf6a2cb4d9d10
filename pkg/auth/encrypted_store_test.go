package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptedStore(t *testing.T) (*EncryptedFileStore, string) {
	t.Helper()
	t.Setenv("SNPUB_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	return store, path
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store, path := newTestEncryptedStore(t)

	require.NoError(t, store.Store(&Account{
		Username:  "tester",
		Password:  "hunter2",
		UserAgent: "Agent/1.0",
	}))

	account, err := store.Retrieve("tester")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", account.Password)
	assert.Equal(t, "Agent/1.0", account.UserAgent)

	// The on-disk file must not leak the plaintext password.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hunter2")
}

func TestEncryptedStoreSurvivesReopen(t *testing.T) {
	store, path := newTestEncryptedStore(t)
	require.NoError(t, store.Store(&Account{Username: "tester", Password: "hunter2"}))

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	account, err := reopened.Retrieve("tester")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", account.Password)
}

func TestEncryptedStoreWrongPassphrase(t *testing.T) {
	store, path := newTestEncryptedStore(t)
	require.NoError(t, store.Store(&Account{Username: "tester", Password: "hunter2"}))

	t.Setenv("SNPUB_PASSPHRASE", "a-different-passphrase")
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = reopened.Retrieve("tester")
	assert.Error(t, err, "a wrong passphrase must not decrypt")
}

func TestEncryptedStoreDelete(t *testing.T) {
	store, _ := newTestEncryptedStore(t)
	require.NoError(t, store.Store(&Account{Username: "tester", Password: "hunter2"}))

	require.NoError(t, store.Delete("tester"))
	assert.False(t, store.Exists("tester"))
	assert.ErrorIs(t, store.Delete("tester"), ErrCredentialsNotFound)
}

func TestEncryptedStoreRetrieveMissing(t *testing.T) {
	store, _ := newTestEncryptedStore(t)

	_, err := store.Retrieve("ghost")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	_, err = store.Retrieve("")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEncryptedStoreGeneratesPassphraseFile(t *testing.T) {
	// No env passphrase: the store generates and persists one next to
	// the credential file.
	t.Setenv("SNPUB_PASSPHRASE", "")

	dir := t.TempDir()
	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Username: "tester", Password: "hunter2"}))
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))
}
