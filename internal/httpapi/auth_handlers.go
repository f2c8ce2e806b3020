package httpapi

import (
	"errors"
	"net/http"
	"time"

	"fitbase.app/internal/audit"
	"fitbase.app/internal/auth"
	"fitbase.app/internal/obs"
)

type registerRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string        `json:"token"`
	User  auth.SafeUser `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		obs.ObserveAuthOp("register", outcomeFor(err))
		handleAuthError(w, r, err, msgInvalidCredentials)
		return
	}

	obs.ObserveAuthOp("register", "ok")
	_ = audit.LogEvent(r.Context(), auth.ActionRegister, map[string]any{
		"user_id": result.User.ID,
		"email":   result.User.Email,
	})
	a.setRefreshCookie(w, result)
	writeJSON(w, http.StatusCreated, authResponse{Token: result.AccessToken, User: result.User})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.ObserveAuthOp("login", outcomeFor(err))
		handleAuthError(w, r, err, msgInvalidCredentials)
		return
	}

	obs.ObserveAuthOp("login", "ok")
	_ = audit.LogEvent(r.Context(), auth.ActionLogin, map[string]any{
		"user_id": result.User.ID,
	})
	a.setRefreshCookie(w, result)
	writeJSON(w, http.StatusOK, authResponse{Token: result.AccessToken, User: result.User})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
		return
	}

	result, err := a.auth.RefreshSession(r.Context(), identity.UserID)
	if err != nil {
		obs.ObserveAuthOp("refresh", outcomeFor(err))
		handleAuthError(w, r, err, msgSessionNotFound)
		return
	}

	obs.ObserveAuthOp("refresh", "ok")
	_ = audit.LogEvent(r.Context(), auth.ActionRefresh, map[string]any{
		"user_id": result.User.ID,
	})
	a.setRefreshCookie(w, result)
	writeJSON(w, http.StatusOK, authResponse{Token: result.AccessToken, User: result.User})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	tokenID, _ := auth.RefreshTokenIDFromContext(r.Context())

	if err := a.auth.RevokeSession(r.Context(), tokenID, identity.UserID); err != nil {
		obs.ObserveAuthOp("logout", outcomeFor(err))
		handleAuthError(w, r, err, msgSessionNotFound)
		return
	}

	obs.ObserveAuthOp("logout", "ok")
	_ = audit.LogEvent(r.Context(), auth.ActionLogout, map[string]any{
		"user_id": identity.UserID,
	})
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": auth.SafeUser{
			ID:     identity.UserID,
			Email:  identity.Email,
			Name:   identity.Name,
			Status: identity.Status,
			Roles:  identity.Roles,
		},
	})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles, err := a.auth.ListRoles(r.Context())
	if err != nil {
		obs.LogError("role list failed", err, nil)
		writeError(w, r, http.StatusInternalServerError, "role listing failed")
		return
	}
	type roleView struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView{Name: role.Name, Description: role.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": views})
}

// setRefreshCookie binds the refresh token to an HTTP-only, strictly
// same-site cookie scoped to the auth routes, expiring with the token.
func (a *API) setRefreshCookie(w http.ResponseWriter, result *auth.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    result.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  result.RefreshTokenExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// handleAuthError maps service errors to the wire taxonomy. Unauthorized
// always carries a generic message so callers cannot distinguish which check
// failed.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error, unauthorizedMsg string) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, unauthorizedMsg)
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient role")
	default:
		obs.LogError("auth operation failed", err, map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrForbidden):
		return "denied"
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrConflict):
		return "rejected"
	default:
		return "error"
	}
}
