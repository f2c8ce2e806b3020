package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour * 14

	defaultIssuer = "fitbase"
	minSecretLen  = 32
)

// TokenIssuer signs and verifies access and refresh tokens. Access tokens are
// stateless; refresh tokens are additionally backed by a store record keyed by
// the token's jti, which the issuer itself never touches.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// AccessClaims is the verified claim set of an access token.
type AccessClaims struct {
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// IssuerOption configures TokenIssuer behavior.
type IssuerOption func(*TokenIssuer) error

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(ti *TokenIssuer) error {
		if ttl > 0 {
			ti.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(ti *TokenIssuer) error {
		if ttl > 0 {
			ti.refreshTTL = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) IssuerOption {
	return func(ti *TokenIssuer) error {
		if issuer != "" {
			ti.issuer = issuer
		}
		return nil
	}
}

// WithIssuerClock overrides the time source (useful for tests).
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(ti *TokenIssuer) error {
		if fn != nil {
			ti.now = fn
		}
		return nil
	}
}

// NewTokenIssuer constructs a TokenIssuer. Both secrets must be at least 32
// bytes and must differ, so a refresh token can never verify as an access
// token or vice versa.
func NewTokenIssuer(accessSecret, refreshSecret string, opts ...IssuerOption) (*TokenIssuer, error) {
	if len(accessSecret) < minSecretLen {
		return nil, fmt.Errorf("access secret must be at least %d characters", minSecretLen)
	}
	if len(refreshSecret) < minSecretLen {
		return nil, fmt.Errorf("refresh secret must be at least %d characters", minSecretLen)
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	ti := &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		issuer:        defaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(ti); err != nil {
			return nil, err
		}
	}
	return ti, nil
}

// AccessTTL reports the configured access token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.refreshTTL }

// SignAccessToken embeds the user's identity and role names into a signed
// HS256 token. No side effects; validity is signature plus expiry only.
func (ti *TokenIssuer) SignAccessToken(u *User) (string, error) {
	now := ti.now().UTC()
	claims := AccessClaims{
		Email:  u.Email,
		Name:   u.Name,
		Status: u.Status,
		Roles:  u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// SignRefreshToken signs a minimal claim set for the user and returns the
// token together with its jti and expiry. The caller persists the record; the
// plaintext token is never stored.
func (ti *TokenIssuer) SignRefreshToken(userID string) (string, string, time.Time, error) {
	now := ti.now().UTC()
	expiresAt := now.Add(ti.refreshTTL)
	jti := uuid.NewString()
	claims := jwt.RegisteredClaims{
		Issuer:    ti.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        jti,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, jti, expiresAt, nil
}

// VerifyAccessToken checks signature, expiry and issuer, returning the
// decoded claims. The store is never consulted.
func (ti *TokenIssuer) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ti.parse(token, claims, ti.accessSecret); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshToken checks the refresh token's signature and expiry and
// returns its claims. Resolving the jti against the store is the caller's
// responsibility.
func (ti *TokenIssuer) VerifyRefreshToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if err := ti.parse(token, claims, ti.refreshSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (ti *TokenIssuer) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// HashToken returns the one-way hash under which a signed token is persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
