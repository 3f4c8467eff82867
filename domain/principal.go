package domain

import "time"

// Principal is the identity provider's authenticated-user record. It is owned
// by the provider; the lifecycle manager only ever holds a read-only reference.
type Principal struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Session is a provider-issued credential bundle bound to a Principal.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Principal    *Principal `json:"principal"`
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(reference)
}
