package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages user accounts. Users returned by lookups carry resolved
// role names.
type UserStore interface {
	// Create persists the user and its role assignments in one transaction.
	// Returns ErrConflict when the email is already registered.
	Create(ctx context.Context, u *User, roleIDs []string) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RoleStore manages the role catalog.
type RoleStore interface {
	// Ensure creates any missing roles; existing rows are left untouched.
	Ensure(ctx context.Context, roles []Role) error
	// ByNames resolves the given names to roles; unknown names are skipped.
	ByNames(ctx context.Context, names []string) ([]Role, error)
	List(ctx context.Context) ([]Role, error)
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// FindActive returns the record only when it is neither revoked nor
	// expired. Anything else is ErrNotFound.
	FindActive(ctx context.Context, id string) (*RefreshToken, error)
	// Revoke marks a single token revoked. Revoking a missing or
	// already-revoked token is not an error.
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	// Rotate revokes every token of the user and persists the replacement
	// inside a single transaction.
	Rotate(ctx context.Context, userID string, tok *RefreshToken) error
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
