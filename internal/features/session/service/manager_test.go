package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pi-storefront/internal/common/errors"
	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/repository"
	"pi-storefront/internal/features/session/repository/file"
	"pi-storefront/internal/features/session/repository/memory"
	"pi-storefront/internal/features/session/sdk"
	"pi-storefront/internal/features/session/verifier"
)

// fakeLocator makes the SDK appear when present is set.
type fakeLocator struct {
	present atomic.Bool
	lookups atomic.Int32
	token   sdk.TokenFunc
}

func (l *fakeLocator) Lookup() (sdk.PlatformSDK, bool) {
	l.lookups.Add(1)
	if !l.present.Load() {
		return nil, false
	}
	return l.token, true
}

func presentLocator(token sdk.TokenFunc) *fakeLocator {
	l := &fakeLocator{token: token}
	l.present.Store(true)
	return l
}

func staticToken(token string) sdk.TokenFunc {
	return func(ctx context.Context) (string, error) { return token, nil }
}

type verifierFunc func(ctx context.Context, token string) (*models.Identity, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*models.Identity, error) {
	return f(ctx, token)
}

func noNetwork(t *testing.T) Verifier {
	return verifierFunc(func(ctx context.Context, token string) (*models.Identity, error) {
		t.Fatalf("unexpected verification call")
		return nil, nil
	})
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type brokenStore struct {
	loadErr, saveErr, eraseErr error
	panicOnLoad                bool
}

func (s brokenStore) Load(ctx context.Context) (*models.Identity, error) {
	if s.panicOnLoad {
		panic("disk on fire")
	}
	return nil, s.loadErr
}
func (s brokenStore) Save(ctx context.Context, identity models.Identity) error { return s.saveErr }
func (s brokenStore) Erase(ctx context.Context) error                         { return s.eraseErr }

var u1 = models.Identity{SubjectID: "u1", DisplayName: "a", Role: models.RoleCustomer}

func verifyServer(t *testing.T, status int, body string) *verifier.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return verifier.NewClient(srv.URL, time.Second)
}

func newManager(store repository.Store, locator sdk.Locator, v Verifier, n Notifier) *Manager {
	return NewManager(store, locator, v, n, zerolog.Nop(), Options{Interactive: true, PollInterval: 10 * time.Millisecond})
}

func loggedIn(t *testing.T, store repository.Store, identity models.Identity) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), identity))
}

func TestInitialStateIsLoading(t *testing.T) {
	m := newManager(memory.NewStore(), nil, noNetwork(t), nil)
	s := m.State()
	assert.True(t, s.Loading)
	assert.Equal(t, models.PhaseBootstrapping, s.Phase())
}

func TestBootstrapAbsentRecord(t *testing.T) {
	m := newManager(memory.NewStore(), nil, noNetwork(t), nil)
	m.Activate(context.Background())
	defer m.Close()

	s := m.State()
	assert.Nil(t, s.Identity)
	assert.False(t, s.Loading)
	assert.Equal(t, models.PhaseLoggedOut, s.Phase())
}

func TestBootstrapMalformedRecords(t *testing.T) {
	for _, raw := range []string{"{", "null", "[]", `{"subject_id":""}`, `{"subject_id":"u1","role":"god"}`, "\x00\x01"} {
		store := memory.NewStore()
		store.SetRaw([]byte(raw))

		m := newManager(store, nil, noNetwork(t), nil)
		assert.NotPanics(t, func() { m.Activate(context.Background()) }, raw)

		s := m.State()
		assert.Nil(t, s.Identity, raw)
		assert.False(t, s.Loading, raw)
		assert.Nil(t, store.Raw(), "malformed record %q should be erased", raw)
		m.Close()
	}
}

func TestBootstrapStoreFailures(t *testing.T) {
	for name, store := range map[string]repository.Store{
		"load error": brokenStore{loadErr: errors.New("io")},
		"load panic": brokenStore{panicOnLoad: true},
	} {
		t.Run(name, func(t *testing.T) {
			m := newManager(store, nil, noNetwork(t), nil)
			assert.NotPanics(t, func() { m.Activate(context.Background()) })
			defer m.Close()
			assert.Nil(t, m.Identity())
			assert.False(t, m.State().Loading)
		})
	}
}

func TestBootstrapRestoresIdentityWithoutNetwork(t *testing.T) {
	store := memory.NewStore()
	loggedIn(t, store, u1)

	m := newManager(store, nil, noNetwork(t), nil)
	m.Activate(context.Background())
	defer m.Close()

	require.NotNil(t, m.Identity())
	assert.Equal(t, u1, *m.Identity())
	assert.Equal(t, models.PhaseLoggedIn, m.State().Phase())
}

func TestLoginSuccessPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	v := verifyServer(t, http.StatusOK, `{"success":true,"user":{"subject_id":"u1","display_name":"a","role":"customer","wallet_address":null}}`)

	m := newManager(file.NewStore(path), presentLocator(staticToken("tok")), v, nil)
	m.Activate(context.Background())
	require.NoError(t, m.Login(context.Background()))
	m.Close()

	require.NotNil(t, m.Identity())
	assert.Equal(t, u1, *m.Identity())
	assert.False(t, m.State().Loading)

	reloaded := newManager(file.NewStore(path), nil, noNetwork(t), nil)
	reloaded.Activate(context.Background())
	defer reloaded.Close()
	require.NotNil(t, reloaded.Identity())
	assert.Equal(t, u1, *reloaded.Identity())
}

func TestLoginEmptyWalletSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	v := verifyServer(t, http.StatusOK, `{"success":true,"user":{"subject_id":"pi user 7","display_name":"a","role":"seller","wallet_address":""}}`)

	m := newManager(file.NewStore(path), presentLocator(staticToken("tok")), v, nil)
	m.Activate(context.Background())
	require.NoError(t, m.Login(context.Background()))
	m.Close()

	reloaded := newManager(file.NewStore(path), nil, noNetwork(t), nil)
	reloaded.Activate(context.Background())
	defer reloaded.Close()

	got := reloaded.Identity()
	require.NotNil(t, got)
	assert.Equal(t, "pi user 7", got.SubjectID)
	require.NotNil(t, got.WalletAddress)
	assert.Equal(t, "", *got.WalletAddress)
}

func TestLoginSendsSDKToken(t *testing.T) {
	var got string
	v := verifierFunc(func(ctx context.Context, token string) (*models.Identity, error) {
		got = token
		id := u1
		return &id, nil
	})
	m := newManager(memory.NewStore(), presentLocator(staticToken("pi-token-42")), v, nil)
	m.Activate(context.Background())
	defer m.Close()

	require.NoError(t, m.Login(context.Background()))
	assert.Equal(t, "pi-token-42", got)
}

func TestLoginVerificationFailureKeepsPreviousIdentity(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"non ok":        {http.StatusUnauthorized, `{"success":true,"user":{"subject_id":"u2","role":"admin"}}`},
		"success false": {http.StatusOK, `{"success":false}`},
		"missing user":  {http.StatusOK, `{"success":true}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			loggedIn(t, store, u1)
			notifier := &recordingNotifier{}

			m := newManager(store, presentLocator(staticToken("tok")), verifyServer(t, tc.status, tc.body), notifier)
			m.Activate(context.Background())
			defer m.Close()

			err := m.Login(context.Background())
			assert.Equal(t, apperrors.ErrCodeVerificationFailed, apperrors.CodeOf(err))

			s := m.State()
			assert.False(t, s.Loading)
			require.NotNil(t, s.Identity)
			assert.Equal(t, u1, *s.Identity)

			persisted, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, u1, *persisted)
			assert.Equal(t, 1, notifier.count())
		})
	}
}

func TestLoginTokenFailures(t *testing.T) {
	cases := map[string]struct {
		token sdk.TokenFunc
		code  apperrors.ErrorCode
	}{
		"error": {func(ctx context.Context) (string, error) { return "", errors.New("user cancelled") }, apperrors.ErrCodeExternalAPI},
		"panic": {func(ctx context.Context) (string, error) { panic("sdk crashed") }, apperrors.ErrCodeInternal},
		"empty": {staticToken(""), apperrors.ErrCodeVerificationFailed},
		"hangs": {func(ctx context.Context) (string, error) { <-ctx.Done(); return "", ctx.Err() }, apperrors.ErrCodeTimeout},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			m := NewManager(memory.NewStore(), presentLocator(tc.token), noNetwork(t), notifier, zerolog.Nop(),
				Options{Interactive: true, TokenTimeout: 50 * time.Millisecond})
			m.Activate(context.Background())
			defer m.Close()

			err := m.Login(context.Background())
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
			assert.False(t, m.State().Loading)
			assert.Nil(t, m.Identity())
			assert.Equal(t, 1, notifier.count())
		})
	}
}

func TestLoginVerifierPanicClearsLoading(t *testing.T) {
	v := verifierFunc(func(ctx context.Context, token string) (*models.Identity, error) { panic("boom") })
	m := newManager(memory.NewStore(), presentLocator(staticToken("tok")), v, nil)
	m.Activate(context.Background())
	defer m.Close()

	err := m.Login(context.Background())
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(err))
	assert.False(t, m.State().Loading)

	// a later login is not blocked by the panicked one
	err = m.Login(context.Background())
	assert.NotEqual(t, apperrors.ErrCodeLoginInProgress, apperrors.CodeOf(err))
}

func TestLoginSaveFailureLeavesIdentityUntouched(t *testing.T) {
	v := verifierFunc(func(ctx context.Context, token string) (*models.Identity, error) {
		id := u1
		return &id, nil
	})
	m := newManager(brokenStore{saveErr: errors.New("quota")}, presentLocator(staticToken("tok")), v, nil)
	m.Activate(context.Background())
	defer m.Close()

	err := m.Login(context.Background())
	assert.Equal(t, apperrors.ErrCodeStorage, apperrors.CodeOf(err))
	assert.Nil(t, m.Identity())
	assert.False(t, m.State().Loading)
}

func TestLoginRefusesReentry(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	token := sdk.TokenFunc(func(ctx context.Context) (string, error) {
		close(entered)
		<-release
		return "tok", nil
	})
	v := verifierFunc(func(ctx context.Context, token string) (*models.Identity, error) {
		id := u1
		return &id, nil
	})
	m := newManager(memory.NewStore(), presentLocator(token), v, nil)
	m.Activate(context.Background())
	defer m.Close()

	first := make(chan error, 1)
	go func() { first <- m.Login(context.Background()) }()
	<-entered

	assert.True(t, m.State().Loading)
	assert.Equal(t, models.PhaseLoggingIn, m.State().Phase())
	err := m.Login(context.Background())
	assert.Equal(t, apperrors.ErrCodeLoginInProgress, apperrors.CodeOf(err))
	assert.True(t, m.State().Loading, "refused call must not clear loading")

	close(release)
	require.NoError(t, <-first)
	assert.False(t, m.State().Loading)
	assert.Equal(t, u1, *m.Identity())
}

func TestLoginWithoutSDKIsUnavailableInProductionBuild(t *testing.T) {
	if DevLoginEnabled() {
		t.Skip("development bypass compiled in")
	}
	store := memory.NewStore()
	loggedIn(t, store, u1)
	notifier := &recordingNotifier{}

	m := newManager(store, &fakeLocator{}, noNetwork(t), notifier)
	m.Activate(context.Background())
	defer m.Close()

	err := m.Login(context.Background())
	assert.Equal(t, apperrors.ErrCodePlatformUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, u1, *m.Identity())
	assert.False(t, m.State().Loading)
	assert.Equal(t, 1, notifier.count())
}

func TestNonInteractiveNeverConsultsLocator(t *testing.T) {
	locator := presentLocator(staticToken("tok"))
	m := NewManager(memory.NewStore(), locator, noNetwork(t), nil, zerolog.Nop(),
		Options{Interactive: false, PollInterval: 5 * time.Millisecond})
	m.Activate(context.Background())
	defer m.Close()

	_ = m.Login(context.Background())
	time.Sleep(30 * time.Millisecond)

	assert.Zero(t, locator.lookups.Load())
	assert.False(t, m.State().SDKReady)
	assert.False(t, m.State().Loading)
}

func TestLogout(t *testing.T) {
	store := memory.NewStore()
	loggedIn(t, store, u1)
	m := newManager(store, nil, noNetwork(t), nil)
	m.Activate(context.Background())
	defer m.Close()

	m.Logout(context.Background())
	assert.Nil(t, m.Identity())
	assert.Nil(t, store.Raw())

	// logging out twice is fine
	m.Logout(context.Background())
	assert.Nil(t, m.Identity())
}

func TestLogoutIgnoresStoreErrors(t *testing.T) {
	m := newManager(brokenStore{eraseErr: errors.New("read-only")}, nil, noNetwork(t), nil)
	m.Activate(context.Background())
	defer m.Close()

	assert.NotPanics(t, func() { m.Logout(context.Background()) })
	assert.Nil(t, m.Identity())
}

func TestSDKReadyFlipsOnceAndStopsPolling(t *testing.T) {
	locator := &fakeLocator{token: staticToken("tok")}
	m := newManager(memory.NewStore(), locator, noNetwork(t), nil)
	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Activate(context.Background())
	defer m.Close()

	require.Eventually(t, func() bool { return locator.lookups.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.State().SDKReady)

	locator.present.Store(true)
	require.Eventually(t, func() bool { return m.State().SDKReady }, time.Second, 5*time.Millisecond)

	settled := locator.lookups.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, locator.lookups.Load(), "polling must stop after detection")

	locator.present.Store(false)
	time.Sleep(30 * time.Millisecond)
	assert.True(t, m.State().SDKReady, "sdkReady never reverts")

	seenReady := false
	for done := false; !done; {
		select {
		case s := <-updates:
			if seenReady {
				assert.True(t, s.SDKReady, "sdkReady reverted in stream")
			}
			seenReady = seenReady || s.SDKReady
		default:
			done = true
		}
	}
}

type notifyingLocator struct {
	fakeLocator
	ready chan struct{}
}

func (l *notifyingLocator) Ready(ctx context.Context) <-chan struct{} { return l.ready }

func TestSDKReadyViaNotification(t *testing.T) {
	locator := &notifyingLocator{ready: make(chan struct{})}
	m := NewManager(memory.NewStore(), locator, noNetwork(t), nil, zerolog.Nop(),
		Options{Interactive: true, PollInterval: time.Hour})
	m.Activate(context.Background())
	defer m.Close()

	locator.present.Store(true)
	close(locator.ready)
	require.Eventually(t, func() bool { return m.State().SDKReady }, time.Second, 5*time.Millisecond)
}

func TestCloseStopsPollingAndIsIdempotent(t *testing.T) {
	locator := &fakeLocator{}
	m := newManager(memory.NewStore(), locator, noNetwork(t), nil)
	m.Activate(context.Background())
	require.Eventually(t, func() bool { return locator.lookups.Load() > 0 }, time.Second, 5*time.Millisecond)

	m.Close()
	m.Close()
	stopped := locator.lookups.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, locator.lookups.Load())
	assert.False(t, m.State().SDKReady)
}

func TestCloseWithoutActivate(t *testing.T) {
	m := newManager(memory.NewStore(), nil, noNetwork(t), nil)
	assert.NotPanics(t, m.Close)

	m.Activate(context.Background())
	ch, _ := m.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribeSeesLoginTransitions(t *testing.T) {
	v := verifierFunc(func(ctx context.Context, token string) (*models.Identity, error) {
		id := u1
		return &id, nil
	})
	m := newManager(memory.NewStore(), presentLocator(staticToken("tok")), v, nil)
	m.Activate(context.Background())

	updates, unsubscribe := m.Subscribe()
	first := <-updates
	assert.False(t, first.Loading)
	assert.Nil(t, first.Identity)

	require.NoError(t, m.Login(context.Background()))
	var last models.State
	require.Eventually(t, func() bool {
		select {
		case last = <-updates:
		default:
		}
		return last.Identity != nil && !last.Loading
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
	m.Close()
}

func TestSnapshotsAreCopies(t *testing.T) {
	wallet := "GABC"
	store := memory.NewStore()
	loggedIn(t, store, models.Identity{SubjectID: "u1", Role: models.RoleCustomer, WalletAddress: &wallet})
	m := newManager(store, nil, noNetwork(t), nil)
	m.Activate(context.Background())
	defer m.Close()

	snap := m.Identity()
	*snap.WalletAddress = "tampered"
	assert.Equal(t, "GABC", *m.Identity().WalletAddress)
}
