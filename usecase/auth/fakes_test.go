package auth

import (
	"context"
	"sync"
	"time"

	"github.com/stampcard/backend/domain"
)

// fakeProvider is an in-memory identity provider for tests.
type fakeProvider struct {
	mu           sync.Mutex
	session      *domain.Session
	sessionErr   error
	getDelay     time.Duration
	signOutErr   error
	signOutCalls int
	subs         map[int]func(*domain.Session)
	nextSub      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[int]func(*domain.Session))}
}

func (p *fakeProvider) GetSession(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	delay := p.getDelay
	session := p.session
	err := p.sessionErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return session, err
}

func (p *fakeProvider) Subscribe(cb func(*domain.Session)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}, nil
}

// emit pushes a session-change event to every subscriber.
func (p *fakeProvider) emit(session *domain.Session) {
	p.mu.Lock()
	cbs := make([]func(*domain.Session), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(session)
	}
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.sessionErr
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Session, error) {
	return nil, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutCalls++
	p.session = nil
	return p.signOutErr
}

func (p *fakeProvider) signOuts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOutCalls
}

func (p *fakeProvider) ResetPassword(ctx context.Context, email string) error { return nil }

func (p *fakeProvider) Resend(ctx context.Context, kind, email string) error { return nil }

var _ Provider = (*fakeProvider)(nil)

// memProfileRepo is an in-memory profile store with the same uniqueness
// semantics as the Postgres implementation.
type memProfileRepo struct {
	mu         sync.Mutex
	rows       map[string]*domain.Profile
	getDelay   time.Duration
	getErr     error
	getErrOnce error
	insertErr  error
	inserts    int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{rows: make(map[string]*domain.Profile)}
}

func (r *memProfileRepo) GetByPrincipal(ctx context.Context, principalID string) (*domain.Profile, error) {
	r.mu.Lock()
	delay := r.getDelay
	r.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErrOnce != nil {
		err := r.getErrOnce
		r.getErrOnce = nil
		return nil, err
	}
	if r.getErr != nil {
		return nil, r.getErr
	}
	row, ok := r.rows[principalID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *memProfileRepo) Insert(ctx context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.rows[profile.ID]; ok {
		return domain.ErrProfileExists
	}
	r.inserts++
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt
	copied := *profile
	r.rows[profile.ID] = &copied
	return nil
}

func (r *memProfileRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func verifiedSession(id, email string) *domain.Session {
	return &domain.Session{
		AccessToken: "token-" + id,
		ExpiresAt:   time.Now().Add(time.Hour),
		Principal: &domain.Principal{
			ID:            id,
			Email:         email,
			EmailVerified: true,
		},
	}
}
