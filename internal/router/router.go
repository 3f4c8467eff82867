package router

import (
	"github.com/fasthttp/router"

	apiHandler "github.com/stampcard/backend/api/handler"
	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/internal/middleware"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Session *apiHandler.SessionHandler
	Home    *apiHandler.HomeHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, guard *middleware.Guard) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Auth routes
	r.POST("/api/v1/auth/signin", handlers.Auth.SignIn)
	r.POST("/api/v1/auth/signup", handlers.Auth.SignUp)
	r.POST("/api/v1/auth/signout", handlers.Auth.SignOut)
	r.POST("/api/v1/auth/reset-password", handlers.Auth.ResetPassword)
	r.POST("/api/v1/auth/resend", handlers.Auth.Resend)

	// Session lifecycle routes
	r.GET("/api/v1/session", handlers.Session.Get)
	r.POST("/api/v1/session/activity", handlers.Session.Activity)
	r.POST("/api/v1/session/visibility", handlers.Session.Visibility)
	r.POST("/api/v1/session/unload", handlers.Session.Unload)
	r.POST("/api/v1/session/retry", handlers.Session.Retry)

	// Role-guarded areas
	customerOnly := guard.RequireRole(domain.RoleCustomer)
	businessOnly := guard.RequireRole(domain.RoleBusiness)
	r.GET("/api/v1/customer/home", customerOnly(handlers.Home.Customer))
	r.GET("/api/v1/business/home", businessOnly(handlers.Home.Business))

	return r
}
