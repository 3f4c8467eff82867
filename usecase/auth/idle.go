package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
)

// Inactivity defaults, matching the product's 10-minute idle policy with a
// 2-minute warning lead.
const (
	DefaultIdleTimeout = 10 * time.Minute
	DefaultIdleWarning = 2 * time.Minute
)

// IdleMonitor expires the session after a bounded period without user
// interaction. It runs only while the session is authenticated; every
// qualifying signal cancel-and-resets both the warning and the expiry timer,
// so the last activity always wins.
type IdleMonitor struct {
	timeout      time.Duration
	warningLead  time.Duration
	forceSignOut func(context.Context)
	logger       *zap.Logger

	mu           sync.Mutex
	active       bool
	seq          uint64
	warnTimer    *time.Timer
	expireTimer  *time.Timer
	lastActivity time.Time
}

func NewIdleMonitor(timeout, warningLead time.Duration, forceSignOut func(context.Context), logger *zap.Logger) *IdleMonitor {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	if warningLead <= 0 || warningLead >= timeout {
		warningLead = DefaultIdleWarning
		if warningLead >= timeout {
			warningLead = timeout / 5
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdleMonitor{
		timeout:      timeout,
		warningLead:  warningLead,
		forceSignOut: forceSignOut,
		logger:       logger,
	}
}

// Bind wires the monitor to the manager's state transitions.
func (m *IdleMonitor) Bind(manager *Manager) {
	manager.OnChange(func(snap domain.Snapshot) {
		if snap.IsAuthenticated() {
			m.Activate()
		} else {
			m.Deactivate()
		}
	})
}

// Activate arms the timers. Repeated activation behaves like an activity
// signal.
func (m *IdleMonitor) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
	m.resetLocked()
}

// Deactivate cancels both timers. A timer left running past deactivation
// would fire a forced logout into a fresh sign-in, which is why this is a
// correctness requirement and not housekeeping.
func (m *IdleMonitor) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.seq++
	m.lastActivity = time.Time{}
	m.stopLocked()
}

// Touch records a qualifying interaction signal and defers expiry.
func (m *IdleMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.resetLocked()
}

// LastActivity returns the most recent interaction timestamp.
func (m *IdleMonitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func (m *IdleMonitor) resetLocked() {
	m.stopLocked()
	m.seq++
	seq := m.seq
	m.lastActivity = time.Now()

	m.warnTimer = time.AfterFunc(m.timeout-m.warningLead, func() {
		m.warn(seq)
	})
	m.expireTimer = time.AfterFunc(m.timeout, func() {
		m.expire(seq)
	})
}

func (m *IdleMonitor) stopLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.expireTimer != nil {
		m.expireTimer.Stop()
		m.expireTimer = nil
	}
}

func (m *IdleMonitor) warn(seq uint64) {
	m.mu.Lock()
	stale := !m.active || seq != m.seq
	m.mu.Unlock()
	if stale {
		return
	}
	m.logger.Info("session expires soon due to inactivity",
		zap.Duration("remaining", m.warningLead))
}

func (m *IdleMonitor) expire(seq uint64) {
	m.mu.Lock()
	if !m.active || seq != m.seq {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.stopLocked()
	m.mu.Unlock()

	m.logger.Info("session expired due to inactivity",
		zap.Duration("timeout", m.timeout))
	if m.forceSignOut != nil {
		m.forceSignOut(context.Background())
	}
}
