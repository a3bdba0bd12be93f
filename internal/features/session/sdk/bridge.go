package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrBridgeInvalid is returned when the bridge file cannot be parsed.
var ErrBridgeInvalid = errors.New("sdk bridge file is invalid")

const bridgeRetry = 200 * time.Millisecond

// FileBridge reaches the platform through a file the wallet host writes.
// The file existing means the SDK has loaded; its content is
//
//	{"accessToken": "..."}
//
// and the token may be filled in after the file first appears.
type FileBridge struct {
	path string
}

func NewFileBridge(path string) *FileBridge {
	return &FileBridge{path: path}
}

func (b *FileBridge) Lookup() (PlatformSDK, bool) {
	if b.path == "" {
		return nil, false
	}
	info, err := os.Stat(b.path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return b, true
}

// AccessToken waits until the bridge carries a token or ctx ends.
func (b *FileBridge) AccessToken(ctx context.Context) (string, error) {
	for {
		token, err := b.readToken()
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for access token: %w", ctx.Err())
		case <-time.After(bridgeRetry):
		}
	}
}

func (b *FileBridge) readToken() (string, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return "", fmt.Errorf("read sdk bridge: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", nil
	}
	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBridgeInvalid, err)
	}
	return strings.TrimSpace(payload.AccessToken), nil
}

// Ready watches the bridge directory with fsnotify and closes the channel
// when the bridge file appears. Returns nil if the watch cannot be set up.
func (b *FileBridge) Ready(ctx context.Context) <-chan struct{} {
	if b.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		_ = watcher.Close()
		return nil
	}

	ready := make(chan struct{})
	go func() {
		defer watcher.Close()
		// the file may have appeared before the watch was registered
		if _, ok := b.Lookup(); ok {
			close(ready)
			return
		}
		target := filepath.Clean(b.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if _, ok := b.Lookup(); ok {
					close(ready)
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ready
}
