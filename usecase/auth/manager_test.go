package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/repository"
	"github.com/stampcard/backend/repository/memory"
)

func newTestManager(t *testing.T, provider Provider, repo *memProfileRepo, initTimeout time.Duration) (*Manager, *memory.Store, *memory.Store) {
	t.Helper()
	persistent := memory.New()
	volatile := memory.New()
	manager := NewManager(provider, NewResolver(repo, zap.NewNop()), persistent, volatile, zap.NewNop(), ManagerConfig{
		InitTimeout: initTimeout,
	})
	t.Cleanup(manager.Close)
	return manager, persistent, volatile
}

func waitForState(t *testing.T, manager *Manager, want domain.LifecycleState) domain.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return manager.Snapshot().State == want
	}, 2*time.Second, 5*time.Millisecond, "expected state %s, got %s", want, manager.Snapshot().State)
	return manager.Snapshot()
}

func TestManagerStartsInitializing(t *testing.T) {
	provider := newFakeProvider()
	provider.getDelay = 100 * time.Millisecond
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))
	assert.Equal(t, domain.StateInitializing, manager.Snapshot().State)
}

func TestManagerNoSessionBecomesUnauthenticated(t *testing.T) {
	provider := newFakeProvider()
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))

	snap := waitForState(t, manager, domain.StateUnauthenticated)
	assert.Nil(t, snap.Principal)
	assert.Nil(t, snap.Profile)
	assert.Empty(t, snap.Err)
}

func TestManagerUnverifiedEmailSignsOutWithNotice(t *testing.T) {
	provider := newFakeProvider()
	provider.session = &domain.Session{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(time.Hour),
		Principal: &domain.Principal{
			ID:    "p1",
			Email: "new@example.com",
		},
	}
	repo := newMemProfileRepo()
	manager, _, _ := newTestManager(t, provider, repo, time.Second)

	require.NoError(t, manager.Start(context.Background()))

	snap := waitForState(t, manager, domain.StateUnauthenticated)
	assert.Equal(t, domain.ErrEmailUnverified.Message, snap.Notice)
	assert.Empty(t, snap.Err, "verification required is a notice, not an error")
	assert.GreaterOrEqual(t, provider.signOuts(), 1)
	assert.Zero(t, repo.count(), "no profile may be provisioned for an unverified principal")
}

func TestManagerProvisionsDefaultProfile(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	repo := newMemProfileRepo()
	manager, _, _ := newTestManager(t, provider, repo, time.Second)

	require.NoError(t, manager.Start(context.Background()))

	snap := waitForState(t, manager, domain.StateAuthenticated)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "p1", snap.Profile.ID)
	assert.Equal(t, domain.RoleCustomer, snap.Profile.Role)
	assert.Equal(t, "alice", snap.Profile.Name)
	assert.Equal(t, 1, repo.count())
}

func TestManagerRespectsSignUpRoleMetadata(t *testing.T) {
	provider := newFakeProvider()
	session := verifiedSession("p2", "shop@example.com")
	session.Principal.Metadata = map[string]string{"role": "business"}
	provider.session = session
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))

	snap := waitForState(t, manager, domain.StateAuthenticated)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, domain.RoleBusiness, snap.Profile.Role)
}

func TestManagerResolverBackendFailureSurfacesError(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	repo := newMemProfileRepo()
	repo.getErr = domain.NewError(domain.ErrCodeBackend, "store down")
	manager, _, _ := newTestManager(t, provider, repo, time.Second)

	require.NoError(t, manager.Start(context.Background()))

	snap := waitForState(t, manager, domain.StateError)
	assert.Contains(t, snap.Err, "store down")
	assert.Nil(t, snap.Profile)
}

func TestManagerInitTimeoutForcesSignOut(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	provider.getDelay = 500 * time.Millisecond
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), 30*time.Millisecond)

	require.NoError(t, manager.Start(context.Background()))

	snap := waitForState(t, manager, domain.StateUnauthenticated)
	assert.Nil(t, snap.Principal)
	assert.GreaterOrEqual(t, provider.signOuts(), 1)

	// The late provider answer must never resurrect the session.
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, domain.StateUnauthenticated, manager.Snapshot().State)
}

func TestManagerConvergesOnProviderEvents(t *testing.T) {
	provider := newFakeProvider()
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateUnauthenticated)

	provider.emit(verifiedSession("p1", "alice@example.com"))
	snap := waitForState(t, manager, domain.StateAuthenticated)
	assert.Equal(t, "p1", snap.Principal.ID)

	provider.emit(nil)
	snap = waitForState(t, manager, domain.StateUnauthenticated)
	assert.Nil(t, snap.Principal)
	assert.Nil(t, snap.Profile)
}

func TestManagerSignOutClearsEverything(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	manager, persistent, volatile := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateAuthenticated)

	require.NoError(t, persistent.Set(repository.MarkerAppVersion, "v1"))
	require.NoError(t, volatile.Set(repository.MarkerPageRefreshing, "true"))

	manager.SignOut(context.Background())

	snap := manager.Snapshot()
	assert.Equal(t, domain.StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Principal)
	assert.Nil(t, snap.Profile)

	version, _ := persistent.Get(repository.MarkerAppVersion)
	assert.Empty(t, version)
	flag, _ := volatile.Get(repository.MarkerPageRefreshing)
	assert.Empty(t, flag)
}

func TestManagerSignOutClearsLocallyEvenWhenProviderFails(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	provider.signOutErr = domain.NewError(domain.ErrCodeBackend, "provider offline")
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateAuthenticated)

	manager.SignOut(context.Background())
	assert.Equal(t, domain.StateUnauthenticated, manager.Snapshot().State)
}

func TestManagerForceSignOutIsIdempotent(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateAuthenticated)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.ForceSignOut(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.StateUnauthenticated, manager.Snapshot().State)
}

func TestManagerLastAppliedEventWins(t *testing.T) {
	provider := newFakeProvider()
	repo := newMemProfileRepo()
	repo.getDelay = 100 * time.Millisecond
	manager, _, _ := newTestManager(t, provider, repo, time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateUnauthenticated)

	// A slow resolution is in flight when the user signs out; the stale
	// continuation must be discarded, not applied over the sign-out.
	done := make(chan struct{})
	go func() {
		provider.emit(verifiedSession("p1", "alice@example.com"))
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	manager.SignOut(context.Background())
	<-done

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, domain.StateUnauthenticated, manager.Snapshot().State)
}

func TestManagerDiscardsContinuationsAfterClose(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	provider.getDelay = 50 * time.Millisecond
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))
	manager.Close()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, domain.StateInitializing, manager.Snapshot().State,
		"no continuation may mutate state after teardown")
}

func TestManagerRetryRecoversFromError(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	repo := newMemProfileRepo()
	repo.getErr = domain.NewError(domain.ErrCodeBackend, "store down")
	manager, _, _ := newTestManager(t, provider, repo, time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateError)

	repo.mu.Lock()
	repo.getErr = nil
	repo.mu.Unlock()

	manager.Retry(context.Background())
	waitForState(t, manager, domain.StateAuthenticated)
}

func TestManagerRetryOutlivesCallerCancellation(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	repo := newMemProfileRepo()
	repo.getErr = domain.NewError(domain.ErrCodeBackend, "store down")
	manager, _, _ := newTestManager(t, provider, repo, time.Second)

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateError)

	repo.mu.Lock()
	repo.getErr = nil
	repo.mu.Unlock()
	provider.mu.Lock()
	provider.getDelay = 50 * time.Millisecond
	provider.mu.Unlock()

	// An HTTP retry hands over its request context and cancels it as soon as
	// the response is written, while the check is still in flight. The check
	// must finish anyway and recover the session.
	reqCtx, cancel := context.WithCancel(context.Background())
	manager.Retry(reqCtx)
	cancel()

	waitForState(t, manager, domain.StateAuthenticated)
}

func TestManagerCanceledCheckIsDiscardedNotFatal(t *testing.T) {
	provider := newFakeProvider()
	provider.sessionErr = context.Canceled
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	require.NoError(t, manager.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	snap := manager.Snapshot()
	assert.Equal(t, domain.StateInitializing, snap.State,
		"a canceled check is a stale continuation, not a provider outage")
	assert.Empty(t, snap.Err)
}

func TestManagerOnChangeObservesTransitions(t *testing.T) {
	provider := newFakeProvider()
	provider.session = verifiedSession("p1", "alice@example.com")
	manager, _, _ := newTestManager(t, provider, newMemProfileRepo(), time.Second)

	var mu sync.Mutex
	var states []domain.LifecycleState
	manager.OnChange(func(snap domain.Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	require.NoError(t, manager.Start(context.Background()))
	waitForState(t, manager, domain.StateAuthenticated)
	manager.SignOut(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, domain.StateUnauthenticated, states[len(states)-1])
}
