package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/repository"
)

// DefaultInitTimeout bounds the one-shot session check at startup.
const DefaultInitTimeout = 5 * time.Second

// ManagerConfig carries the tunables of the lifecycle manager.
type ManagerConfig struct {
	InitTimeout time.Duration
}

// Manager is the single authority for the {principal, profile, state, error}
// tuple. It subscribes to the provider's session-change stream for its whole
// lifetime, runs a bounded one-shot session check on start, and funnels every
// transition through one guarded apply path. Consumers read via Snapshot and
// may register OnChange hooks; nobody else writes the tuple.
type Manager struct {
	provider   Provider
	resolver   *Resolver
	persistent repository.MarkerStore
	volatile   repository.MarkerStore
	logger     *zap.Logger

	initTimeout time.Duration

	mu          sync.Mutex
	gen         uint64
	snap        domain.Snapshot
	hooks       []func(domain.Snapshot)
	unsubscribe func()
	closed      bool
}

func NewManager(
	provider Provider,
	resolver *Resolver,
	persistent repository.MarkerStore,
	volatile repository.MarkerStore,
	logger *zap.Logger,
	cfg ManagerConfig,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	return &Manager{
		provider:    provider,
		resolver:    resolver,
		persistent:  persistent,
		volatile:    volatile,
		logger:      logger,
		initTimeout: cfg.InitTimeout,
		snap:        domain.Snapshot{State: domain.StateInitializing},
	}
}

// Start subscribes to the provider's event stream and kicks off the initial
// session check. It must be called exactly once.
func (m *Manager) Start(ctx context.Context) error {
	unsub, err := m.provider.Subscribe(func(session *domain.Session) {
		// Each event recomputes the full tuple from its own input, so the
		// current generation at delivery time is the right guard.
		m.handleSession(ctx, m.currentGen(), session)
	})
	if err != nil {
		return domain.WrapError(domain.ErrCodeBackend, "provider subscription failed", err)
	}

	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()

	m.runInitialCheck(ctx)
	return nil
}

// Retry re-runs the bounded session check, e.g. from a consumer's "try again"
// action after an Error state. The check outlives the request that triggered
// it, so the caller's cancellation must not propagate into it.
func (m *Manager) Retry(ctx context.Context) {
	m.apply(m.bumpGen(), domain.Snapshot{State: domain.StateInitializing})
	m.runInitialCheck(context.WithoutCancel(ctx))
}

// Recheck feeds a fresh one-shot session query through the normal path
// without resetting the visible state. Used by the periodic revalidator.
func (m *Manager) Recheck(ctx context.Context) {
	gen := m.currentGen()
	cctx, cancel := context.WithTimeout(ctx, m.initTimeout)
	defer cancel()
	session, err := m.provider.GetSession(cctx)
	if err != nil {
		m.logger.Warn("session recheck failed", zap.Error(err))
		return
	}
	m.handleSession(ctx, gen, session)
}

// runInitialCheck performs the one-shot "who am I" query. Not resolving
// within the bound is treated as an unrecoverable provider outage: the
// manager drops to a clean unauthenticated state instead of leaving the
// consumer in limbo.
func (m *Manager) runInitialCheck(ctx context.Context) {
	gen := m.currentGen()

	go func() {
		type result struct {
			session *domain.Session
			err     error
		}
		resCh := make(chan result, 1)

		cctx, cancel := context.WithTimeout(ctx, m.initTimeout)
		go func() {
			defer cancel()
			session, err := m.provider.GetSession(cctx)
			resCh <- result{session: session, err: err}
		}()

		select {
		case res := <-resCh:
			if errors.Is(res.err, context.DeadlineExceeded) {
				m.forceSignOutOnTimeout(ctx, gen)
				return
			}
			if errors.Is(res.err, context.Canceled) {
				// The surrounding lifetime ended; this continuation is
				// stale, not a provider failure.
				m.logger.Debug("session check canceled, continuation discarded")
				return
			}
			if res.err != nil {
				m.logger.Error("initial session check failed", zap.Error(res.err))
				m.apply(gen, domain.Snapshot{
					State: domain.StateError,
					Err:   domain.WrapError(domain.ErrCodeBackend, "session check failed", res.err).Error(),
				})
				return
			}
			m.handleSession(ctx, gen, res.session)
		case <-time.After(m.initTimeout):
			m.forceSignOutOnTimeout(ctx, gen)
		}
	}()
}

// forceSignOutOnTimeout escalates an indeterminate session to "none": a
// provider that cannot answer within the bound is treated as an outage, and
// the state must end up Unauthenticated, never Error.
func (m *Manager) forceSignOutOnTimeout(ctx context.Context, gen uint64) {
	if m.currentGen() != gen {
		return
	}
	m.logger.Warn("initial session check timed out, forcing sign-out",
		zap.Duration("timeout", m.initTimeout),
		zap.String("reason", domain.ErrSessionCheckTimeout.Message))
	m.ForceSignOut(ctx)
}

// handleSession converges the tuple from a session yielded by either the
// one-shot check or the event stream.
func (m *Manager) handleSession(ctx context.Context, gen uint64, session *domain.Session) {
	if session == nil || session.Principal == nil {
		m.apply(gen, domain.Snapshot{State: domain.StateUnauthenticated})
		return
	}

	principal := session.Principal
	if !principal.EmailVerified {
		// Not an error: the principal exists but may not hold a session
		// until the address is confirmed.
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.Warn("provider sign-out for unverified principal failed", zap.Error(err))
		}
		m.apply(gen, domain.Snapshot{
			State:  domain.StateUnauthenticated,
			Notice: domain.ErrEmailUnverified.Message,
		})
		return
	}

	profile, err := m.resolver.Resolve(ctx, principal)
	if err != nil {
		m.logger.Error("profile resolution failed",
			zap.String("principal_id", principal.ID), zap.Error(err))
		m.apply(gen, domain.Snapshot{
			State: domain.StateError,
			Err:   err.Error(),
		})
		return
	}

	m.apply(gen, domain.Snapshot{
		State:     domain.StateAuthenticated,
		Principal: principal,
		Profile:   profile,
	})
}

// SignOut is the user-initiated sign-out. Local state is cleared even when
// the provider call fails; the failure is only recorded for observability.
func (m *Manager) SignOut(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Error("provider sign-out failed, clearing local state anyway", zap.Error(err))
	}
	m.signOutLocally()
}

// ForceSignOut unconditionally drops to a clean unauthenticated state. Called
// by timeouts, the inactivity monitor, the staleness detector, and consumers
// reacting to the Error state. Safe to call repeatedly.
func (m *Manager) ForceSignOut(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("provider sign-out during forced logout failed", zap.Error(err))
	}
	m.signOutLocally()
}

func (m *Manager) signOutLocally() {
	if m.volatile != nil {
		if err := m.volatile.Clear(); err != nil {
			m.logger.Warn("volatile marker clear failed", zap.Error(err))
		}
	}
	if m.persistent != nil {
		if err := m.persistent.Delete(repository.MarkerAppVersion); err != nil {
			m.logger.Warn("version marker clear failed", zap.Error(err))
		}
	}
	// Bumping the generation discards every in-flight continuation.
	m.apply(m.bumpGen(), domain.Snapshot{State: domain.StateUnauthenticated})
}

// Snapshot returns the current tuple.
func (m *Manager) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// OnChange registers a hook invoked after every applied transition, outside
// the manager's lock and in registration order.
func (m *Manager) OnChange(fn func(domain.Snapshot)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Close tears the manager down: the subscription is dropped and the
// generation bump guarantees no in-flight continuation mutates state after.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *Manager) currentGen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *Manager) bumpGen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// apply commits a snapshot unless the continuation that produced it is stale.
func (m *Manager) apply(gen uint64, snap domain.Snapshot) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		m.logger.Debug("stale continuation discarded",
			zap.String("state", string(snap.State)))
		return
	}
	m.snap = snap
	hooks := make([]func(domain.Snapshot), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(snap)
	}
}
