package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"fitbase.app/internal/obs"
)

// Audit action tags written by the service.
const (
	ActionRegister = "auth.register"
	ActionLogin    = "auth.login"
	ActionRefresh  = "auth.refresh"
	ActionLogout   = "auth.logout"
)

const minPasswordLength = 8

// Service orchestrates registration, login, refresh and logout on top of the
// stores and the token issuer. Safe for concurrent use as long as the store
// is.
type Service struct {
	store    Store
	tokens   *TokenIssuer
	now      func() time.Time
	hashCost int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHashCost sets the bcrypt work factor used for new passwords.
func WithHashCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost < MinHashCost {
			return fmt.Errorf("hash cost must be at least %d", MinHashCost)
		}
		s.hashCost = cost
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the auth service with its owned dependencies.
func NewService(store Store, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	svc := &Service{
		store:    store,
		tokens:   tokens,
		now:      time.Now,
		hashCost: DefaultHashCost,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the issuer for middleware-level verification.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// EnsureBuiltins seeds the builtin role catalog.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Roles(ctx).Ensure(ctx, BuiltinRoles)
}

// ListRoles returns the role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Roles    []string
}

// Register creates a user with at least one resolved role and issues the
// first token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(in.Roles) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", ErrInvalidInput)
	}

	roles, err := s.store.Roles(ctx).ByNames(ctx, in.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: no valid roles provided", ErrInvalidInput)
	}

	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	roleIDs := make([]string, 0, len(roles))
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
		roleNames = append(roleNames, r.Name)
	}

	user := &User{
		Email:        email,
		Name:         name,
		Status:       UserStatusActive,
		PasswordHash: hash,
		Roles:        roleNames,
	}
	if err := s.store.Users(ctx).Create(ctx, user, roleIDs); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}

	s.audit(ctx, user.ID, ActionRegister, "user", user.ID)
	return s.issueTokens(ctx, user)
}

// Authenticate verifies credentials and issues a fresh token pair, revoking
// every refresh token previously issued to the user. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Status == UserStatusSuspended {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}

	s.audit(ctx, user.ID, ActionLogin, "user", user.ID)
	return s.issueTokens(ctx, user)
}

// RefreshSession rotates the caller's refresh lineage. The HTTP middleware
// has already validated the presented refresh token against the store; this
// only re-checks that the user still resolves.
func (s *Service) RefreshSession(ctx context.Context, userID string) (*AuthResult, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Status == UserStatusSuspended {
		return nil, ErrUnauthorized
	}

	s.audit(ctx, user.ID, ActionRefresh, "refresh_token", "")
	return s.issueTokens(ctx, user)
}

// RevokeSession revokes the single named refresh token. Revoking a missing or
// already-revoked token succeeds, so repeated logouts are harmless.
func (s *Service) RevokeSession(ctx context.Context, tokenID, userID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidInput)
	}
	if err := s.store.RefreshTokens(ctx).Revoke(ctx, tokenID); err != nil {
		return err
	}
	if userID != "" {
		s.audit(ctx, userID, ActionLogout, "refresh_token", tokenID)
	}
	return nil
}

// issueTokens signs the pair and rotates the persisted lineage: every prior
// refresh token of the user is revoked and the new record created in one
// store transaction. Store failures here propagate; a half-applied rotation
// is a security-relevant inconsistency.
func (s *Service) issueTokens(ctx context.Context, user *User) (*AuthResult, error) {
	access, err := s.tokens.SignAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, jti, expiresAt, err := s.tokens.SignRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	rec := &RefreshToken{
		ID:        jti,
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		ExpiresAt: expiresAt,
	}
	if err := s.store.RefreshTokens(ctx).Rotate(ctx, user.ID, rec); err != nil {
		return nil, err
	}
	return &AuthResult{
		User:                  user.Sanitize(),
		AccessToken:           access,
		RefreshToken:          refresh,
		RefreshTokenID:        jti,
		RefreshTokenExpiresAt: expiresAt,
	}, nil
}

// audit appends an entry best-effort. A logging outage must not block the
// auth flow; the token records themselves stay authoritative.
func (s *Service) audit(ctx context.Context, userID, action, entity, entityID string) {
	entry := &AuditEntry{
		OccurredAt: s.now().UTC(),
		UserID:     userID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
	}
	if err := s.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.LogError("audit append failed", err, map[string]any{
			"action":  action,
			"user_id": userID,
		})
	}
}
