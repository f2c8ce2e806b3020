package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fitbase.app/internal/auth"
	"fitbase.app/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	refreshCookieName = "fitbase_refresh"
	refreshCookiePath = "/v1/auth"

	msgInvalidCredentials = "Invalid credentials"
	msgSessionNotFound    = "Session not found"
	msgNoRefreshToken     = "Refresh token not registered"
)

// withAccessToken validates the bearer access token and attaches the decoded
// identity to the request context. Purely signature + expiry; no store reads.
func (a *API) withAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
			return
		}
		claims, err := a.auth.Tokens().VerifyAccessToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
			return
		}
		identity := auth.Identity{
			UserID: claims.Subject,
			Email:  claims.Email,
			Name:   claims.Name,
			Status: claims.Status,
			Roles:  claims.Roles,
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

// withRefreshCookie validates the refresh-token cookie. Signature validity
// alone is not enough: the token's jti must resolve to a non-revoked,
// non-expired store record whose hash matches the presented token. This is
// the server-side revocation enforcement point.
func (a *API) withRefreshCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(refreshCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeError(w, r, http.StatusBadRequest, msgNoRefreshToken)
			return
		}
		claims, err := a.auth.Tokens().VerifyRefreshToken(cookie.Value)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
			return
		}
		store := a.store.RefreshTokens(r.Context())
		rec, err := store.FindActive(r.Context(), claims.ID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
				return
			}
			obs.LogError("refresh token lookup failed", err, nil)
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if rec.UserID != claims.Subject || rec.TokenHash != auth.HashToken(cookie.Value) {
			// A signed token whose hash diverges from the stored record means
			// the jti was reused with different material. Kill the record.
			_ = store.Revoke(r.Context(), rec.ID)
			writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{UserID: rec.UserID})
		ctx = auth.ContextWithRefreshTokenID(ctx, rec.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects identities whose role list has no intersection with the
// required set.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
				return
			}
			if !identity.HasAnyRole(roles...) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(header, bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
