package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stampcard/backend/api/transport"
	"github.com/stampcard/backend/pkg/httpcontext"
	authUC "github.com/stampcard/backend/usecase/auth"
)

// SessionHandler exposes the lifecycle manager's observable state and the
// browser-originated lifecycle signals (activity, visibility, unload).
type SessionHandler struct {
	baseHandler
	manager   *authUC.Manager
	idle      *authUC.IdleMonitor
	staleness *authUC.StalenessDetector
}

func NewSessionHandler(
	manager *authUC.Manager,
	idle *authUC.IdleMonitor,
	staleness *authUC.StalenessDetector,
	adapter *httpcontext.Adapter,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		manager:     manager,
		idle:        idle,
		staleness:   staleness,
	}
}

// @Summary Current session snapshot
// @Tags session
// @Router /api/v1/session [get]
func (h *SessionHandler) Get(ctx *fasthttp.RequestCtx) {
	snap := h.manager.Snapshot()
	if snap.Notice != "" {
		h.respondJSON(ctx, http.StatusOK, transport.NewNotice(snap.Notice, snap))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, snap)
}

// @Summary Report a user interaction signal
// @Tags session
// @Router /api/v1/session/activity [post]
func (h *SessionHandler) Activity(ctx *fasthttp.RequestCtx) {
	h.idle.Touch()
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Report a hidden-to-visible tab transition
// @Tags session
// @Router /api/v1/session/visibility [post]
func (h *SessionHandler) Visibility(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	forced := h.staleness.OnVisible(stdCtx)
	h.respondSuccess(ctx, http.StatusOK, map[string]bool{"forced_sign_out": forced})
}

// @Summary Mark the tab as reloading (pre-unload hook)
// @Tags session
// @Router /api/v1/session/unload [post]
func (h *SessionHandler) Unload(ctx *fasthttp.RequestCtx) {
	h.staleness.MarkReloading()
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Re-run initialization after an error
// @Tags session
// @Router /api/v1/session/retry [post]
func (h *SessionHandler) Retry(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.manager.Retry(stdCtx)
	h.respondSuccess(ctx, http.StatusAccepted, h.manager.Snapshot())
}
