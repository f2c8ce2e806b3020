package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"fitbase.app/internal/auth"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdefghij"
	testRefreshSecret = "refresh-secret-0123456789abcdefghi"
)

// fakeStore backs the API with in-memory state so handler tests run without a
// database.
type fakeStore struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	roles  map[string]auth.Role
	tokens map[string]*auth.RefreshToken
	audits []auth.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[string]*auth.User),
		roles:  make(map[string]auth.Role),
		tokens: make(map[string]*auth.RefreshToken),
	}
}

func (f *fakeStore) Users(ctx context.Context) auth.UserStore { return (*fakeUsers)(f) }
func (f *fakeStore) Roles(ctx context.Context) auth.RoleStore { return (*fakeRoles)(f) }
func (f *fakeStore) RefreshTokens(ctx context.Context) auth.RefreshTokenStore {
	return (*fakeTokens)(f)
}
func (f *fakeStore) Audit(ctx context.Context) auth.AuditStore { return (*fakeAudit)(f) }

type fakeUsers fakeStore

func (f *fakeUsers) Create(ctx context.Context, u *auth.User, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = "user-" + u.Email
	}
	clone := *u
	f.users[u.ID] = &clone
	return nil
}

func (f *fakeUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

type fakeRoles fakeStore

func (f *fakeRoles) Ensure(ctx context.Context, roles []auth.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range roles {
		if _, ok := f.roles[r.Name]; ok {
			continue
		}
		if r.ID == "" {
			r.ID = "role-" + r.Name
		}
		f.roles[r.Name] = r
	}
	return nil
}

func (f *fakeRoles) ByNames(ctx context.Context, names []string) ([]auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var roles []auth.Role
	for _, name := range names {
		if r, ok := f.roles[name]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (f *fakeRoles) List(ctx context.Context) ([]auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var roles []auth.Role
	for _, r := range f.roles {
		roles = append(roles, r)
	}
	return roles, nil
}

type fakeTokens fakeStore

func (f *fakeTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *tok
	f.tokens[tok.ID] = &clone
	return nil
}

func (f *fakeTokens) FindActive(ctx context.Context, id string) (*auth.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[id]
	if !ok || tok.Revoked || !tok.ExpiresAt.After(time.Now()) {
		return nil, auth.ErrNotFound
	}
	clone := *tok
	return &clone, nil
}

func (f *fakeTokens) Revoke(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok, ok := f.tokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (f *fakeTokens) RevokeAllForUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (f *fakeTokens) Rotate(ctx context.Context, userID string, tok *auth.RefreshToken) error {
	if err := f.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	return f.Create(ctx, tok)
}

type fakeAudit fakeStore

func (f *fakeAudit) Append(ctx context.Context, entry *auth.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *entry)
	return nil
}

func newTestAPI(t *testing.T) (*API, *auth.Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	issuer, err := auth.NewTokenIssuer(testAccessSecret, testRefreshSecret)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	svc, err := auth.NewService(store, issuer, auth.WithHashCost(auth.MinHashCost))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}
	return New(ReadyProbe{}, "test", svc, store, false), svc, store
}
