package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStoreAndRetrieve(t *testing.T) {
	m := NewManagerWithStores(NewMockStore())

	require.NoError(t, m.Store(&Account{Username: "tester", Password: "hunter2"}))

	account, err := m.Retrieve("tester")
	require.NoError(t, err)
	assert.Equal(t, "tester", account.Username)
	assert.Equal(t, "hunter2", account.Password)
	assert.False(t, account.LastModified.IsZero())
}

func TestManagerStoreRejectsInvalidAccount(t *testing.T) {
	m := NewManagerWithStores(NewMockStore())

	assert.ErrorIs(t, m.Store(nil), ErrInvalidCredentials)
	assert.ErrorIs(t, m.Store(&Account{Password: "x"}), ErrInvalidCredentials)
}

func TestManagerStoreFallsBackOnFailure(t *testing.T) {
	broken := NewMockStore()
	broken.SetError(ErrStoreUnavailable)
	working := NewMockStore()

	m := NewManagerWithStores(broken, working)
	require.NoError(t, m.Store(&Account{Username: "tester", Password: "hunter2"}))

	assert.False(t, broken.Exists("tester"))
	assert.True(t, working.Exists("tester"))
}

func TestManagerStoreAllStoresFailing(t *testing.T) {
	broken := NewMockStore()
	broken.SetError(ErrStoreUnavailable)

	m := NewManagerWithStores(broken)
	err := m.Store(&Account{Username: "tester", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestManagerRetrieveChecksStoresInOrder(t *testing.T) {
	primary := NewMockStore()
	fallback := NewMockStore()
	require.NoError(t, primary.Store(&Account{Username: "tester", Password: "primary"}))
	require.NoError(t, fallback.Store(&Account{Username: "tester", Password: "fallback"}))

	m := NewManagerWithStores(primary, fallback)
	account, err := m.Retrieve("tester")
	require.NoError(t, err)
	assert.Equal(t, "primary", account.Password)
}

func TestManagerRetrieveMissing(t *testing.T) {
	m := NewManagerWithStores(NewMockStore())
	_, err := m.Retrieve("ghost")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerListDeduplicates(t *testing.T) {
	a := NewMockStore()
	b := NewMockStore()
	require.NoError(t, a.Store(&Account{Username: "tester", Password: "x"}))
	require.NoError(t, b.Store(&Account{Username: "tester", Password: "y"}))
	require.NoError(t, b.Store(&Account{Username: "other", Password: "z"}))

	m := NewManagerWithStores(a, b)
	accounts, err := m.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestManagerDeleteRemovesFromAllStores(t *testing.T) {
	a := NewMockStore()
	b := NewMockStore()
	require.NoError(t, a.Store(&Account{Username: "tester", Password: "x"}))
	require.NoError(t, b.Store(&Account{Username: "tester", Password: "y"}))

	m := NewManagerWithStores(a, b)
	require.NoError(t, m.Delete("tester"))
	assert.False(t, a.Exists("tester"))
	assert.False(t, b.Exists("tester"))
}

func TestManagerDeleteMissing(t *testing.T) {
	m := NewManagerWithStores(NewMockStore())
	assert.ErrorIs(t, m.Delete("ghost"), ErrCredentialsNotFound)
	assert.ErrorIs(t, m.Delete(""), ErrInvalidCredentials)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("IG_USERNAME", "envuser")
	t.Setenv("IG_PASSWORD", "envpass")
	t.Setenv("IG_USER_AGENT", "EnvAgent/1.0")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("envuser")
	require.NoError(t, err)
	assert.Equal(t, "envpass", account.Password)
	assert.Equal(t, "EnvAgent/1.0", account.UserAgent)

	_, err = store.Retrieve("someoneelse")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.True(t, store.Exists("envuser"))
	assert.Error(t, store.Store(&Account{Username: "x", Password: "y"}), "environment store is read-only")
}
