package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdefghij"
	testRefreshSecret = "refresh-secret-0123456789abcdefghi"
)

// memStore is an in-memory Store used to exercise the service without a
// database.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*User
	roles  map[string]Role
	tokens map[string]*RefreshToken
	audits []AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]*User),
		roles:  make(map[string]Role),
		tokens: make(map[string]*RefreshToken),
	}
}

func (m *memStore) Users(ctx context.Context) UserStore                 { return (*memUsers)(m) }
func (m *memStore) Roles(ctx context.Context) RoleStore                 { return (*memRoles)(m) }
func (m *memStore) RefreshTokens(ctx context.Context) RefreshTokenStore { return (*memTokens)(m) }
func (m *memStore) Audit(ctx context.Context) AuditStore                { return (*memAudit)(m) }

func (m *memStore) activeTokens(userID string) []*RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*RefreshToken
	for _, tok := range m.tokens {
		if tok.UserID == userID && !tok.Revoked && tok.ExpiresAt.After(time.Now()) {
			active = append(active, tok)
		}
	}
	return active
}

type memUsers memStore

func (m *memUsers) Create(ctx context.Context, u *User, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = "user-" + u.Email
	}
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

type memRoles memStore

func (m *memRoles) Ensure(ctx context.Context, roles []Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range roles {
		if _, ok := m.roles[r.Name]; ok {
			continue
		}
		if r.ID == "" {
			r.ID = "role-" + r.Name
		}
		m.roles[r.Name] = r
	}
	return nil
}

func (m *memRoles) ByNames(ctx context.Context, names []string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []Role
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if r, ok := m.roles[name]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (m *memRoles) List(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []Role
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	return roles, nil
}

type memTokens memStore

func (m *memTokens) Create(ctx context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[tok.ID]; ok {
		return ErrConflict
	}
	clone := *tok
	m.tokens[tok.ID] = &clone
	return nil
}

func (m *memTokens) FindActive(ctx context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok || tok.Revoked || !tok.ExpiresAt.After(time.Now()) {
		return nil, ErrNotFound
	}
	clone := *tok
	return &clone, nil
}

func (m *memTokens) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (m *memTokens) RevokeAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (m *memTokens) Rotate(ctx context.Context, userID string, tok *RefreshToken) error {
	if err := m.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	return m.Create(ctx, tok)
}

type memAudit memStore

func (m *memAudit) Append(ctx context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *entry)
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	issuer, err := NewTokenIssuer(testAccessSecret, testRefreshSecret)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	svc, err := NewService(store, issuer, WithHashCost(MinHashCost))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("ensure builtins: %v", err)
	}
	return svc, store
}

func register(t *testing.T, svc *Service, email string, roles ...string) *AuthResult {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"client"}
	}
	res, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Test User",
		Email:    email,
		Password: "correct-horse",
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func TestRegisterIssuesVerifiableTokens(t *testing.T) {
	svc, store := newTestService(t)
	res := register(t, svc, "ann@example.com", "trainer", "client")

	claims, err := svc.Tokens().VerifyAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.Subject != res.User.ID {
		t.Fatalf("subject = %q, want %q", claims.Subject, res.User.ID)
	}
	if claims.Email != "ann@example.com" {
		t.Fatalf("email claim = %q", claims.Email)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles claim = %v, want 2 roles", claims.Roles)
	}
	if claims.Status != UserStatusActive {
		t.Fatalf("status claim = %q", claims.Status)
	}

	refClaims, err := svc.Tokens().VerifyRefreshToken(res.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}
	rec, err := store.RefreshTokens(context.Background()).FindActive(context.Background(), refClaims.ID)
	if err != nil {
		t.Fatalf("refresh record not active: %v", err)
	}
	if rec.TokenHash != HashToken(res.RefreshToken) {
		t.Fatal("stored hash does not match the issued token")
	}
	if rec.UserID != res.User.ID {
		t.Fatalf("record user = %q, want %q", rec.UserID, res.User.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{Email: "a@b.com", Password: "longenough", Roles: []string{"client"}}},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "longenough", Roles: []string{"client"}}},
		{"short password", RegisterInput{Name: "A", Email: "a@b.com", Password: "short", Roles: []string{"client"}}},
		{"no roles", RegisterInput{Name: "A", Email: "a@b.com", Password: "longenough"}},
		{"unknown roles only", RegisterInput{Name: "A", Email: "a@b.com", Password: "longenough", Roles: []string{"ghost"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "dup@example.com")
	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Second",
		Email:    "dup@example.com",
		Password: "longenough",
		Roles:    []string{"client"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAuthenticateWrongPasswordLeavesNoSession(t *testing.T) {
	svc, store := newTestService(t)
	res := register(t, svc, "bob@example.com")

	before := len(store.activeTokens(res.User.ID))
	if _, err := svc.Authenticate(context.Background(), "bob@example.com", "wrong-password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if after := len(store.activeTokens(res.User.ID)); after != before {
		t.Fatalf("active tokens changed on failed login: %d -> %d", before, after)
	}
}

func TestAuthenticateUnknownEmailIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "carol@example.com")

	_, errUnknown := svc.Authenticate(context.Background(), "nobody@example.com", "whatever123")
	_, errWrong := svc.Authenticate(context.Background(), "carol@example.com", "wrong-password")
	if !errors.Is(errUnknown, ErrUnauthorized) || !errors.Is(errWrong, ErrUnauthorized) {
		t.Fatalf("errs = %v / %v, want ErrUnauthorized for both", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("failure modes distinguishable: %q vs %q", errUnknown, errWrong)
	}
}

func TestAuthenticateSuspendedUser(t *testing.T) {
	svc, store := newTestService(t)
	res := register(t, svc, "dave@example.com")

	store.mu.Lock()
	store.users[res.User.ID].Status = UserStatusSuspended
	store.mu.Unlock()

	if _, err := svc.Authenticate(context.Background(), "dave@example.com", "correct-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.RefreshSession(context.Background(), res.User.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginRevokesPriorLineage(t *testing.T) {
	svc, store := newTestService(t)
	first := register(t, svc, "eve@example.com")

	second, err := svc.Authenticate(context.Background(), "eve@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	ctx := context.Background()
	if _, err := store.RefreshTokens(ctx).FindActive(ctx, first.RefreshTokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("first lineage still active, err = %v", err)
	}
	if _, err := store.RefreshTokens(ctx).FindActive(ctx, second.RefreshTokenID); err != nil {
		t.Fatalf("second lineage not active: %v", err)
	}
	if n := len(store.activeTokens(second.User.ID)); n != 1 {
		t.Fatalf("active tokens = %d, want exactly 1", n)
	}
}

func TestRefreshRotatesLineage(t *testing.T) {
	svc, store := newTestService(t)
	res := register(t, svc, "frank@example.com")

	rotated, err := svc.RefreshSession(context.Background(), res.User.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshTokenID == res.RefreshTokenID {
		t.Fatal("rotation reused the jti")
	}

	ctx := context.Background()
	if _, err := store.RefreshTokens(ctx).FindActive(ctx, res.RefreshTokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("used token still active, err = %v", err)
	}
	if _, err := store.RefreshTokens(ctx).FindActive(ctx, rotated.RefreshTokenID); err != nil {
		t.Fatalf("rotated token not active: %v", err)
	}
}

func TestRevokeSessionIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	res := register(t, svc, "gina@example.com")

	ctx := context.Background()
	if err := svc.RevokeSession(ctx, res.RefreshTokenID, res.User.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.RefreshTokens(ctx).FindActive(ctx, res.RefreshTokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("token still active after revoke, err = %v", err)
	}
	if err := svc.RevokeSession(ctx, res.RefreshTokenID, res.User.ID); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := svc.RevokeSession(ctx, "never-issued", res.User.ID); err != nil {
		t.Fatalf("revoke of unknown token: %v", err)
	}
	if err := svc.RevokeSession(ctx, "  ", res.User.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAuditTrailWritten(t *testing.T) {
	svc, store := newTestService(t)
	res := register(t, svc, "hugo@example.com")
	if _, err := svc.Authenticate(context.Background(), "hugo@example.com", "correct-horse"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := svc.RevokeSession(context.Background(), res.RefreshTokenID, res.User.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	actions := make(map[string]int)
	for _, entry := range store.audits {
		actions[entry.Action]++
		if entry.UserID != res.User.ID {
			t.Fatalf("audit entry for wrong user: %+v", entry)
		}
	}
	for _, want := range []string{ActionRegister, ActionLogin, ActionLogout} {
		if actions[want] == 0 {
			t.Fatalf("no audit entry for %s, got %v", want, actions)
		}
	}
}
