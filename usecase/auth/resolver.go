package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/repository"
)

// Resolver maps an authenticated principal to its application profile,
// provisioning a default one on first sight.
type Resolver struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewResolver(profiles repository.ProfileRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		profiles: profiles,
		logger:   logger,
	}
}

// Resolve returns the profile for the principal. A missing row is provisioned
// with defaults derived from the principal; a duplicate-key failure on that
// insert means another resolution won the race, so the existing row is
// fetched and returned. Anything else is fatal.
func (r *Resolver) Resolve(ctx context.Context, principal *domain.Principal) (*domain.Profile, error) {
	if principal == nil || principal.ID == "" {
		return nil, domain.ErrInvalidPayload
	}

	profile, err := r.profiles.GetByPrincipal(ctx, principal.ID)
	if err == nil {
		return profile, nil
	}
	if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return nil, domain.WrapError(domain.ErrCodeBackend, "profile lookup failed", err)
	}

	fresh := domain.DefaultProfile(principal)
	insErr := r.profiles.Insert(ctx, fresh)
	if insErr == nil {
		r.logger.Info("provisioned default profile",
			zap.String("principal_id", principal.ID),
			zap.String("role", string(fresh.Role)),
		)
		return fresh, nil
	}
	if domain.IsDomainError(insErr, domain.ErrCodeConflict) {
		existing, getErr := r.profiles.GetByPrincipal(ctx, principal.ID)
		if getErr != nil {
			return nil, domain.WrapError(domain.ErrCodeBackend, "profile re-fetch after conflict failed", getErr)
		}
		return existing, nil
	}
	return nil, domain.WrapError(domain.ErrCodeBackend, "profile provisioning failed", insErr)
}
