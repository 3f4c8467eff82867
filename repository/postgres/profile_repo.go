package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stampcard/backend/domain"
	"github.com/stampcard/backend/repository"
)

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository instantiates a Postgres-backed profile repository.
func NewProfileRepository(pool *pgxpool.Pool) repository.ProfileRepository {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) GetByPrincipal(ctx context.Context, principalID string) (*domain.Profile, error) {
	const query = `
		SELECT id, email, name, role, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, principalID)

	var profile domain.Profile
	if err := row.Scan(&profile.ID, &profile.Email, &profile.Name, &profile.Role, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, domain.WrapError(domain.ErrCodeBackend, "profile query failed", err)
	}
	return &profile, nil
}

func (r *profileRepository) Insert(ctx context.Context, profile *domain.Profile) error {
	if profile == nil || profile.ID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
		INSERT INTO profiles (id, email, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at;
	`

	err := r.pool.QueryRow(ctx, query,
		profile.ID,
		profile.Email,
		profile.Name,
		profile.Role,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrProfileExists
		}
		return domain.WrapError(domain.ErrCodeBackend, "profile insert failed", err)
	}
	return nil
}
