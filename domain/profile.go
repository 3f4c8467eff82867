package domain

import (
	"strings"
	"time"
)

// Role determines which area of the application a profile belongs to.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleBusiness Role = "business"
)

// Valid reports whether the role is one the application knows about.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleBusiness
}

// Profile is the application-owned record for a principal. Its ID always
// equals the principal's ID; there is at most one row per principal.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultProfile derives the profile provisioned on first resolution: role
// from sign-up metadata when present and valid, customer otherwise, and the
// display name from the email's local part.
func DefaultProfile(p *Principal) *Profile {
	if p == nil {
		return nil
	}
	role := RoleCustomer
	if meta, ok := p.Metadata["role"]; ok {
		if candidate := Role(meta); candidate.Valid() {
			role = candidate
		}
	}
	name := p.Email
	if at := strings.Index(p.Email, "@"); at > 0 {
		name = p.Email[:at]
	}
	return &Profile{
		ID:    p.ID,
		Email: p.Email,
		Name:  name,
		Role:  role,
	}
}
