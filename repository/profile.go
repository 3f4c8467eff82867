package repository

import (
	"context"

	"github.com/stampcard/backend/domain"
)

type ProfileRepository interface {
	GetByPrincipal(ctx context.Context, principalID string) (*domain.Profile, error)
	// Insert creates the row; a duplicate principal id fails with
	// domain.ErrProfileExists via the storage uniqueness constraint.
	Insert(ctx context.Context, profile *domain.Profile) error
}
