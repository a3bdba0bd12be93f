package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	apperrors "pi-storefront/internal/common/errors"
	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/repository"
	"pi-storefront/internal/features/session/sdk"
	"pi-storefront/internal/platform/metrics"
)

const (
	DefaultPollInterval = 300 * time.Millisecond
	DefaultTokenTimeout = 60 * time.Second
)

// Verifier exchanges a platform access token for a trusted identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

type Options struct {
	// Interactive=false disables SDK detection and forces the development
	// login branch (which only exists in devlogin builds).
	Interactive  bool
	PollInterval time.Duration
	TokenTimeout time.Duration
	// DevAutoLogin synthesizes the development identity at bootstrap.
	// Ignored unless built with -tags devlogin.
	DevAutoLogin bool
}

// Manager owns the session lifecycle. It is the only writer of the session
// state; readers take snapshots via State or Subscribe.
type Manager struct {
	store    repository.Store
	locator  sdk.Locator
	verifier Verifier
	notifier Notifier
	logger   zerolog.Logger
	opts     Options

	mu      sync.RWMutex
	state   models.State
	subs    map[int]chan models.State
	nextSub int
	closed  bool

	loggingIn    atomic.Bool
	activateOnce sync.Once
	closeOnce    sync.Once
	stopPoll     context.CancelFunc
	pollDone     chan struct{}
}

func NewManager(store repository.Store, locator sdk.Locator, verifier Verifier, notifier Notifier, logger zerolog.Logger, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TokenTimeout <= 0 {
		opts.TokenTimeout = DefaultTokenTimeout
	}
	if locator == nil {
		locator = sdk.Absent
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Manager{
		store:    store,
		locator:  locator,
		verifier: verifier,
		notifier: notifier,
		logger:   logger.With().Str("component", "session").Logger(),
		opts:     opts,
		state:    models.State{Loading: true},
		subs:     make(map[int]chan models.State),
	}
}

// Activate bootstraps from storage and starts SDK readiness detection.
// Only the first call has an effect.
func (m *Manager) Activate(ctx context.Context) {
	m.activateOnce.Do(func() {
		m.bootstrap(ctx)
		m.startReadiness()
	})
}

// Close stops readiness detection and closes subscriber channels. Safe to
// call more than once and without a prior Activate.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		stop, done := m.stopPoll, m.pollDone
		m.mu.Unlock()

		// the poll goroutine takes m.mu in markSDKReady, so wait unlocked
		if stop != nil {
			stop()
			<-done
		}

		m.mu.Lock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()
	})
}

// State returns a snapshot of the session.
func (m *Manager) State() models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

// Identity returns a copy of the current identity, or nil.
func (m *Manager) Identity() *models.Identity {
	return m.State().Identity
}

// Subscribe delivers the current snapshot and every later change. A slow
// reader only misses intermediate snapshots, never the latest one. The
// returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan models.State, func()) {
	ch := make(chan models.State, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshot()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

// Login acquires a platform token, verifies it and stores the identity.
// On failure the previous identity is kept and the user is notified.
// Loading is cleared on every return path, including panics in the SDK.
func (m *Manager) Login(ctx context.Context) (err error) {
	defer func() { metrics.RecordLogin(loginResult(err)) }()

	if !m.loggingIn.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrCodeLoginInProgress, "login already in progress")
	}
	defer m.loggingIn.Store(false)

	m.update(func(s *models.State) { s.Loading = true })
	defer m.update(func(s *models.State) { s.Loading = false })
	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("login panicked: %v", rec))
			m.fail(err)
		}
	}()

	var platform sdk.PlatformSDK
	found := false
	if m.opts.Interactive {
		platform, found = m.locator.Lookup()
	}
	if !found {
		return m.loginWithoutPlatform(ctx)
	}

	token, err := m.acquireToken(ctx, platform)
	if err != nil {
		m.fail(err)
		return err
	}

	identity, err := m.verifier.Verify(ctx, token)
	if err != nil {
		m.fail(err)
		return err
	}
	if err := m.commit(ctx, *identity); err != nil {
		m.fail(err)
		return err
	}
	m.logger.Info().
		Str("subject_id", identity.SubjectID).
		Str("role", string(identity.Role)).
		Msg("Login succeeded")
	return nil
}

func (m *Manager) loginWithoutPlatform(ctx context.Context) error {
	identity, ok := devLoginIdentity()
	if !ok {
		err := apperrors.New(apperrors.ErrCodePlatformUnavailable, "Pi Browser SDK is not available")
		m.fail(err)
		return err
	}
	m.logger.Warn().
		Bool("interactive", m.opts.Interactive).
		Msg("Platform SDK absent, using development identity")
	if err := m.commit(ctx, identity); err != nil {
		m.fail(err)
		return err
	}
	return nil
}

func (m *Manager) acquireToken(ctx context.Context, platform sdk.PlatformSDK) (string, error) {
	tokenCtx, cancel := context.WithTimeout(ctx, m.opts.TokenTimeout)
	defer cancel()

	token, err := platform.AccessToken(tokenCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.Wrap(err, apperrors.ErrCodeTimeout, "access token request timed out")
		}
		return "", apperrors.NewExternalAPIError("platform sdk", err)
	}
	if token == "" {
		return "", apperrors.NewVerificationError("empty access token")
	}
	return token, nil
}

// commit persists first so storage never lags behind memory.
func (m *Manager) commit(ctx context.Context, identity models.Identity) error {
	if err := m.store.Save(ctx, identity); err != nil {
		return apperrors.NewStorageError("save identity", err)
	}
	m.update(func(s *models.State) { s.Identity = models.Clone(&identity) })
	return nil
}

// Logout erases the stored record and clears the identity. It never fails;
// a storage error is logged.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.store.Erase(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to erase persisted identity")
	}
	m.update(func(s *models.State) { s.Identity = nil })
	m.logger.Info().Msg("Logged out")
}

func (m *Manager) bootstrap(ctx context.Context) {
	var identity *models.Identity
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error().Interface("panic", rec).Msg("Bootstrap panicked, starting logged out")
			identity = nil
		}
		m.update(func(s *models.State) {
			s.Identity = identity
			s.Loading = false
			s.Bootstrapped = true
		})
	}()

	if m.opts.DevAutoLogin {
		if dev, ok := devAutoLoginIdentity(); ok {
			if err := m.store.Save(ctx, dev); err != nil {
				m.logger.Error().Err(err).Msg("Failed to persist development identity")
				return
			}
			m.logger.Warn().Msg("Development auto-login active")
			identity = &dev
			return
		}
	}

	loaded, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrMalformed):
		m.logger.Debug().Err(err).Msg("Discarding malformed persisted identity")
		if err := m.store.Erase(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to erase malformed identity")
		}
	case err != nil:
		m.logger.Warn().Err(err).Msg("Failed to load persisted identity")
	default:
		identity = loaded
	}
}

func (m *Manager) fail(err error) {
	ev := m.logger.Warn()
	if apperrors.CodeOf(err) == apperrors.ErrCodeInternal || apperrors.CodeOf(err) == apperrors.ErrCodeStorage {
		ev = m.logger.Error()
	}
	ev.Err(err).Str("error_code", string(apperrors.CodeOf(err))).Msg("Login failed")
	m.notifier.Notify(userMessage(err))
}

func loginResult(err error) string {
	if err == nil {
		return metrics.LoginOK
	}
	return string(apperrors.CodeOf(err))
}

func userMessage(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeVerificationFailed:
		return "Pi verification failed"
	case apperrors.ErrCodePlatformUnavailable:
		return "Open the store in Pi Browser to log in"
	case apperrors.ErrCodeTimeout:
		return "Login timed out, please try again"
	default:
		return "Login error"
	}
}

// update applies fn under the write lock and broadcasts the result.
func (m *Manager) update(fn func(s *models.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	m.publish(m.snapshot())
}

// publish must be called with m.mu held for writing.
func (m *Manager) publish(s models.State) {
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			// drop the stale snapshot; senders hold m.mu so the slot stays free
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (m *Manager) snapshot() models.State {
	s := m.state
	s.Identity = models.Clone(m.state.Identity)
	return s
}
