// Package sdk is the seam to the asynchronously loaded platform SDK.
//
// Presence of the SDK is the only signal separating a real platform session
// from local development, so Locator.Lookup must be a cheap, side-effect free
// check that can be polled.
package sdk

import "context"

// PlatformSDK acquires platform access tokens.
type PlatformSDK interface {
	// AccessToken may block until the user approves; it must honour ctx.
	AccessToken(ctx context.Context) (string, error)
}

// Locator reports whether the SDK has appeared.
type Locator interface {
	Lookup() (PlatformSDK, bool)
}

// ReadyNotifier is optionally implemented by locators that can signal the
// SDK's appearance instead of being polled. The returned channel is closed
// once Lookup would succeed; it may be nil when notification is unavailable.
type ReadyNotifier interface {
	Ready(ctx context.Context) <-chan struct{}
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func() (PlatformSDK, bool)

func (f LocatorFunc) Lookup() (PlatformSDK, bool) { return f() }

// TokenFunc adapts a function to PlatformSDK.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Absent is a Locator that never finds the SDK.
var Absent Locator = LocatorFunc(func() (PlatformSDK, bool) { return nil, false })
