package sdk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupFollowsFilePresence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	b := NewFileBridge(path)

	_, ok := b.Lookup()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	got, ok := b.Lookup()
	assert.True(t, ok)
	assert.NotNil(t, got)

	_, ok = NewFileBridge("").Lookup()
	assert.False(t, ok)
	_, ok = NewFileBridge(filepath.Dir(path)).Lookup()
	assert.False(t, ok, "directories are not a bridge")
}

func TestAccessTokenReadsBridge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accessToken":" tok-1 "}`), 0o600))

	token, err := NewFileBridge(path).AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestAccessTokenWaitsForToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	go func() {
		time.Sleep(100 * time.Millisecond)
		tmp := path + ".tmp"
		_ = os.WriteFile(tmp, []byte(`{"accessToken":"late"}`), 0o600)
		_ = os.Rename(tmp, path)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token, err := NewFileBridge(path).AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", token)
}

func TestAccessTokenHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accessToken":""}`), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewFileBridge(path).AccessToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAccessTokenInvalidBridge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{nope`), 0o600))

	_, err := NewFileBridge(path).AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrBridgeInvalid)
}

func TestReadyFiresOnCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	b := NewFileBridge(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := b.Ready(ctx)
	require.NotNil(t, ready)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("ready not signalled")
	}
}

func TestReadyAlreadyPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-sdk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	select {
	case <-NewFileBridge(path).Ready(context.Background()):
	case <-time.After(5 * time.Second):
		t.Fatal("ready not signalled")
	}
}

func TestReadyMissingDirectory(t *testing.T) {
	b := NewFileBridge(filepath.Join(t.TempDir(), "missing", "pi-sdk.json"))
	assert.Nil(t, b.Ready(context.Background()))
}
