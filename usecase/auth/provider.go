package auth

import (
	"context"

	"github.com/stampcard/backend/domain"
)

// Resend verification kinds accepted by the provider.
const (
	ResendSignup   = "signup"
	ResendRecovery = "recovery"
)

// Provider is the external identity provider: the source of truth for
// credentials and session tokens. GetSession returns (nil, nil) when no
// session exists. Subscribe registers a callback on the provider's
// session-change stream and returns an unsubscribe func; the callback
// receives nil when the session went away.
type Provider interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	Subscribe(cb func(*domain.Session)) (func(), error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Session, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	Resend(ctx context.Context, kind, email string) error
}
