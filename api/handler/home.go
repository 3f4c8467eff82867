package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	authUC "github.com/stampcard/backend/usecase/auth"
	"github.com/stampcard/backend/pkg/httpcontext"
)

// HomeHandler serves the role-specific landing areas behind the route guard.
type HomeHandler struct {
	baseHandler
	manager *authUC.Manager
}

func NewHomeHandler(manager *authUC.Manager, adapter *httpcontext.Adapter, logger *zap.Logger) *HomeHandler {
	return &HomeHandler{
		baseHandler: newBaseHandler(adapter, logger),
		manager:     manager,
	}
}

// @Summary Customer dashboard entry
// @Tags home
// @Router /api/v1/customer/home [get]
func (h *HomeHandler) Customer(ctx *fasthttp.RequestCtx) {
	snap := h.manager.Snapshot()
	h.respondSuccess(ctx, http.StatusOK, map[string]interface{}{
		"area":    "customer",
		"profile": snap.Profile,
	})
}

// @Summary Business dashboard entry
// @Tags home
// @Router /api/v1/business/home [get]
func (h *HomeHandler) Business(ctx *fasthttp.RequestCtx) {
	snap := h.manager.Snapshot()
	h.respondSuccess(ctx, http.StatusOK, map[string]interface{}{
		"area":    "business",
		"profile": snap.Profile,
	})
}
