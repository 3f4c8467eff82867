package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stampcard/backend/domain"
)

func TestResolverReturnsExistingProfile(t *testing.T) {
	repo := newMemProfileRepo()
	require.NoError(t, repo.Insert(context.Background(), &domain.Profile{
		ID:    "p1",
		Email: "alice@example.com",
		Name:  "alice",
		Role:  domain.RoleBusiness,
	}))
	resolver := NewResolver(repo, zap.NewNop())

	profile, err := resolver.Resolve(context.Background(), &domain.Principal{ID: "p1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBusiness, profile.Role)
	assert.Equal(t, 1, repo.count())
}

func TestResolverProvisionsDefaultOnNotFound(t *testing.T) {
	repo := newMemProfileRepo()
	resolver := NewResolver(repo, zap.NewNop())

	profile, err := resolver.Resolve(context.Background(), &domain.Principal{
		ID:    "p1",
		Email: "bob.smith@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", profile.ID)
	assert.Equal(t, domain.RoleCustomer, profile.Role)
	assert.Equal(t, "bob.smith", profile.Name)
	assert.Equal(t, 1, repo.count())
}

func TestResolverTreatsInsertConflictAsSuccess(t *testing.T) {
	repo := newMemProfileRepo()
	resolver := NewResolver(repo, zap.NewNop())

	// The row appears between the lookup and the insert, as when another
	// resolution wins the race: the first lookup misses, the insert then
	// hits the uniqueness constraint, and the re-fetch must succeed.
	require.NoError(t, repo.Insert(context.Background(), &domain.Profile{
		ID:    "p1",
		Email: "alice@example.com",
		Role:  domain.RoleCustomer,
	}))
	repo.getErrOnce = domain.ErrProfileNotFound

	profile, err := resolver.Resolve(context.Background(), &domain.Principal{ID: "p1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "p1", profile.ID)
	assert.Equal(t, 1, repo.count())
}

func TestResolverConcurrentResolutionsYieldOneRow(t *testing.T) {
	repo := newMemProfileRepo()
	resolver := NewResolver(repo, zap.NewNop())
	principal := &domain.Principal{ID: "p1", Email: "alice@example.com"}

	const callers = 8
	results := make([]*domain.Profile, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(context.Background(), principal)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.count())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "p1", results[i].ID)
	}
}

func TestResolverPropagatesBackendFailures(t *testing.T) {
	repo := newMemProfileRepo()
	repo.getErr = domain.NewError(domain.ErrCodeBackend, "connection refused")
	resolver := NewResolver(repo, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), &domain.Principal{ID: "p1", Email: "a@b.c"})
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeBackend))
}

func TestResolverRejectsEmptyPrincipal(t *testing.T) {
	resolver := NewResolver(newMemProfileRepo(), zap.NewNop())

	_, err := resolver.Resolve(context.Background(), nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = resolver.Resolve(context.Background(), &domain.Principal{})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}
