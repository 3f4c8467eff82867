package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stampcard/backend/usecase/auth"
)

// Revalidator periodically re-runs the one-shot session query so a
// provider-side revocation converges even when no event was delivered.
type Revalidator struct {
	manager  *auth.Manager
	logger   *zap.Logger
	cron     *cron.Cron
	interval time.Duration
}

func NewRevalidator(manager *auth.Manager, interval time.Duration, logger *zap.Logger) *Revalidator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Revalidator{
		manager:  manager,
		logger:   logger,
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	_, _ = r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		r.manager.Recheck(ctx)
	})

	return r
}

func (r *Revalidator) Start() {
	r.cron.Start()
	r.logger.Info("session revalidator started", zap.Duration("interval", r.interval))
}

func (r *Revalidator) Stop(ctx context.Context) {
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	r.logger.Info("session revalidator stopped")
}
