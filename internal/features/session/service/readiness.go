package service

import (
	"context"
	"time"

	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/sdk"
)

// startReadiness polls the locator until the SDK appears. Locators that
// implement sdk.ReadyNotifier are also listened to; whichever fires first
// triggers the same Lookup, so the sdkReady transition is identical.
func (m *Manager) startReadiness() {
	if !m.opts.Interactive {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	m.stopPoll, m.pollDone = cancel, done
	m.mu.Unlock()

	go m.watchSDK(ctx, done)
}

func (m *Manager) watchSDK(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	var notify <-chan struct{}
	if n, ok := m.locator.(sdk.ReadyNotifier); ok {
		notify = n.Ready(ctx)
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-notify:
			notify = nil
		}
		if _, ok := m.locator.Lookup(); ok {
			m.markSDKReady()
			return
		}
	}
}

func (m *Manager) markSDKReady() {
	m.update(func(s *models.State) {
		s.SDKReady = true
	})
	m.logger.Debug().Msg("Platform SDK detected")
}
