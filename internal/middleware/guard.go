package middleware

import (
	"context"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/usecase/auth"
)

// Home paths per role; a role mismatch redirects here instead of denying,
// since role is a navigational dimension in this application.
var roleHomes = map[domain.Role]string{
	domain.RoleCustomer: "/api/v1/customer/home",
	domain.RoleBusiness: "/api/v1/business/home",
}

// SignInPath is where unauthenticated requests get pointed.
const SignInPath = "/api/v1/auth/signin"

// Guard gates routes on the lifecycle manager's snapshot. It never writes
// the session tuple itself; on Error it calls ForceSignOut exactly once per
// error episode to avoid redirect loops.
type Guard struct {
	manager *auth.Manager
	idle    *auth.IdleMonitor
	logger  *zap.Logger

	errorHandled atomic.Bool
}

func NewGuard(manager *auth.Manager, idle *auth.IdleMonitor, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		manager: manager,
		idle:    idle,
		logger:  logger,
	}
	manager.OnChange(func(snap domain.Snapshot) {
		if snap.State != domain.StateError {
			g.errorHandled.Store(false)
		}
	})
	return g
}

// RequireRole wraps a handler so only an authenticated principal with the
// given role passes through. Every passing request counts as an activity
// signal for the inactivity monitor.
func (g *Guard) RequireRole(role domain.Role) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			snap := g.manager.Snapshot()

			switch snap.State {
			case domain.StateInitializing:
				// No navigation decision while the session is still settling.
				ctx.Response.Header.Set("Retry-After", "1")
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				return
			case domain.StateError:
				if g.errorHandled.CompareAndSwap(false, true) {
					g.logger.Warn("error state observed by guard, forcing sign-out",
						zap.String("error", snap.Err))
					go g.manager.ForceSignOut(context.Background())
				}
				g.denyUnauthenticated(ctx)
				return
			case domain.StateUnauthenticated:
				g.denyUnauthenticated(ctx)
				return
			}

			if snap.Profile == nil {
				g.denyUnauthenticated(ctx)
				return
			}
			if snap.Profile.Role != role {
				home, ok := roleHomes[snap.Profile.Role]
				if !ok {
					g.denyUnauthenticated(ctx)
					return
				}
				ctx.Response.Header.Set("Location", home)
				ctx.SetStatusCode(fasthttp.StatusSeeOther)
				return
			}

			if g.idle != nil {
				g.idle.Touch()
			}
			next(ctx)
		}
	}
}

func (g *Guard) denyUnauthenticated(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Location", SignInPath)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
}
