package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pamana/notes/internal/config"
	"pamana/notes/internal/model"
)

func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store must be empty")

	require.NoError(t, store.Set(ctx, model.Credential{Access: "a1", Refresh: "r1"}))
	cred, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Credential{Access: "a1", Refresh: "r1"}, cred)

	// Only the given field changes.
	require.NoError(t, store.Set(ctx, model.Credential{Access: "a2"}))
	cred, _, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Credential{Access: "a2", Refresh: "r1"}, cred)

	require.NoError(t, store.Set(ctx, model.Credential{}))
	cred, _, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Credential{Access: "a2", Refresh: "r1"}, cred)

	require.NoError(t, store.Clear(ctx))
	cred, ok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, cred.Empty())
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "credentials.json"))
	require.NoError(t, err)
	storeContract(t, store)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), model.Credential{Access: "a", Refresh: "r"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := NewFileStore(path)
	require.NoError(t, err)
	cred, ok, err := second.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r", cred.Refresh)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := store.Get(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	store := NewRedisStore(client, "test-"+t.Name())
	defer store.Clear(context.Background())
	storeContract(t, store)
}

func TestOpenSelectsStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.Config{CredentialStore: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	require.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "creds.json")
	store, _, err = Open(ctx, config.Config{CredentialStore: "file", CredentialsFile: path}, nil)
	require.NoError(t, err)
	fileStore, ok := store.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, path, fileStore.Path())

	_, _, err = Open(ctx, config.Config{CredentialStore: "redis"}, nil)
	assert.Error(t, err)

	_, _, err = Open(ctx, config.Config{CredentialStore: "cookie"}, nil)
	assert.Error(t, err)
}

func TestCredentialsKey(t *testing.T) {
	assert.Equal(t, "pamana:credentials:default", credentialsKey(""))
	assert.Equal(t, "pamana:credentials:lab", credentialsKey("lab"))
}
