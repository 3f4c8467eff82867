package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/repository"
)

// StalenessDetector forces re-authentication when the tab resumed over an
// environment that changed underneath it: the persisted version marker no
// longer matches the one minted for this run, or a reload flag was left
// dangling by the pre-unload hook. A mismatch is a signal, not an error.
type StalenessDetector struct {
	persistent   repository.MarkerStore
	volatile     repository.MarkerStore
	forceSignOut func(context.Context)
	logger       *zap.Logger
	now          func() time.Time

	mu        sync.Mutex
	active    bool
	candidate string
}

func NewStalenessDetector(
	persistent repository.MarkerStore,
	volatile repository.MarkerStore,
	forceSignOut func(context.Context),
	logger *zap.Logger,
) *StalenessDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StalenessDetector{
		persistent:   persistent,
		volatile:     volatile,
		forceSignOut: forceSignOut,
		logger:       logger,
		now:          time.Now,
	}
}

// Bind wires the detector to the manager's state transitions.
func (d *StalenessDetector) Bind(manager *Manager) {
	manager.OnChange(func(snap domain.Snapshot) {
		if snap.IsAuthenticated() {
			d.Activate()
		} else {
			d.Deactivate()
		}
	})
}

// Activate mints this run's version marker and persists it if none exists
// yet. The candidate stays fixed for the detector's lifetime.
func (d *StalenessDetector) Activate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	if d.candidate == "" {
		d.candidate = strconv.FormatInt(d.now().UnixMilli(), 10)
	}

	stored, err := d.persistent.Get(repository.MarkerAppVersion)
	if err != nil {
		d.logger.Warn("version marker read failed", zap.Error(err))
		return
	}
	if stored == "" {
		if err := d.persistent.Set(repository.MarkerAppVersion, d.candidate); err != nil {
			d.logger.Warn("version marker write failed", zap.Error(err))
		}
	}
}

func (d *StalenessDetector) Deactivate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
}

// MarkReloading is the pre-unload hook: it flags the volatile store so that
// the next visibility transition knows the tab went through a reload.
func (d *StalenessDetector) MarkReloading() {
	if err := d.volatile.Set(repository.MarkerPageRefreshing, "true"); err != nil {
		d.logger.Warn("reload flag write failed", zap.Error(err))
	}
}

// OnVisible handles the hidden-to-visible transition. A dangling reload flag
// always forces logout, marker match or not; otherwise only a marker mismatch
// does. Returns whether a forced logout was triggered.
func (d *StalenessDetector) OnVisible(ctx context.Context) bool {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return false
	}
	candidate := d.candidate
	d.mu.Unlock()

	reloadFlag, err := d.volatile.Get(repository.MarkerPageRefreshing)
	if err != nil {
		d.logger.Warn("reload flag read failed", zap.Error(err))
	}
	stored, err := d.persistent.Get(repository.MarkerAppVersion)
	if err != nil {
		d.logger.Warn("version marker read failed", zap.Error(err))
	}

	wasReloading := reloadFlag != ""
	if !wasReloading && stored == candidate {
		return false
	}

	d.logger.Info("stale session detected, forcing sign-out",
		zap.Bool("was_reloading", wasReloading),
		zap.String("stored_version", stored),
		zap.String("current_version", candidate),
	)
	if err := d.volatile.Delete(repository.MarkerPageRefreshing); err != nil {
		d.logger.Warn("reload flag clear failed", zap.Error(err))
	}
	if err := d.persistent.Set(repository.MarkerAppVersion, candidate); err != nil {
		d.logger.Warn("version marker refresh failed", zap.Error(err))
	}
	if d.forceSignOut != nil {
		d.forceSignOut(ctx)
	}
	return true
}
