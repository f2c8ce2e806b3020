package auth

import "time"

const (
	UserStatusActive    = "active"
	UserStatusPending   = "pending"
	UserStatusSuspended = "suspended"
)

// User represents a platform account with resolved role names.
type User struct {
	ID           string
	Email        string
	Name         string
	Status       string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitize returns the user projection safe to hand to clients. The password
// hash never crosses this boundary.
func (u *User) Sanitize() SafeUser {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return SafeUser{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Status: u.Status,
		Roles:  roles,
	}
}

// SafeUser is the client-facing user shape.
type SafeUser struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Roles  []string `json:"roles"`
}

// Role groups users by capability (admin, trainer, client).
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// RefreshToken is the persisted, revocable record backing a signed refresh
// token. Only the one-way hash of the signed token is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// AuditEntry is an append-only record of an auth-relevant action.
type AuditEntry struct {
	ID         string
	OccurredAt time.Time
	UserID     string
	Action     string
	Entity     string
	EntityID   string
	Metadata   map[string]string
}

// AuthResult is the outcome of any token-issuing operation.
type AuthResult struct {
	User                  SafeUser
	AccessToken           string
	RefreshToken          string
	RefreshTokenID        string
	RefreshTokenExpiresAt time.Time
}

// BuiltinRoles are seeded at startup; registration can only bind to roles
// that already exist.
var BuiltinRoles = []Role{
	{Name: "admin", Description: "Platform administration"},
	{Name: "trainer", Description: "Coaches clients, manages plans and assessments"},
	{Name: "client", Description: "Tracks workouts and nutrition"},
}
