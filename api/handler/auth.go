package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stampcard/backend/api/transport"
	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/pkg/httpcontext"
	authUC "github.com/stampcard/backend/usecase/auth"
)

type AuthHandler struct {
	baseHandler
	provider authUC.Provider
	manager  *authUC.Manager
}

func NewAuthHandler(provider authUC.Provider, manager *authUC.Manager, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		provider:    provider,
		manager:     manager,
	}
}

// @Summary Sign in with email and password
// @Tags auth
// @Router /api/v1/auth/signin [post]
func (h *AuthHandler) SignIn(ctx *fasthttp.RequestCtx) {
	var req transport.SignInRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" || req.Password == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, err := h.provider.SignIn(stdCtx, req.Email, req.Password)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, session)
}

// @Summary Register a new account
// @Tags auth
// @Router /api/v1/auth/signup [post]
func (h *AuthHandler) SignUp(ctx *fasthttp.RequestCtx) {
	var req transport.SignUpRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" || req.Password == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, err := h.provider.SignUp(stdCtx, req.Email, req.Password, req.Metadata)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if session == nil {
		h.respondJSON(ctx, http.StatusAccepted, transport.NewNotice(domain.ErrEmailUnverified.Message, nil))
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, session)
}

// @Summary Sign out the current session
// @Tags auth
// @Router /api/v1/auth/signout [post]
func (h *AuthHandler) SignOut(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.manager.SignOut(stdCtx)
	h.respondSuccess(ctx, http.StatusOK, h.manager.Snapshot())
}

// @Summary Request a password reset email
// @Tags auth
// @Router /api/v1/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(ctx *fasthttp.RequestCtx) {
	var req transport.ResetPasswordRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.provider.ResetPassword(stdCtx, req.Email); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusAccepted, nil)
}

// @Summary Resend a verification email
// @Tags auth
// @Router /api/v1/auth/resend [post]
func (h *AuthHandler) Resend(ctx *fasthttp.RequestCtx) {
	var req transport.ResendRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}
	if req.Type == "" {
		req.Type = authUC.ResendSignup
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.provider.Resend(stdCtx, req.Type, req.Email); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusAccepted, nil)
}
