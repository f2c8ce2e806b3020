package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"fitbase.app/internal/auth"
	"fitbase.app/internal/obs"
)

// ReadyProbe checks readiness (database reachability).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	readyProbe   ReadyProbe
	version      string
	auth         *auth.Service
	store        auth.Store
	cookieSecure bool
	corsOrigins  []string
}

// Option configures the API.
type Option func(*API)

// WithAllowedOrigins enables CORS for the given origins. Empty means no CORS
// headers are emitted at all.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) {
		a.corsOrigins = origins
	}
}

// New wires the route table. The auth service and store are owned
// dependencies constructed at startup, not package singletons.
func New(rp ReadyProbe, version string, svc *auth.Service, store auth.Store, cookieSecure bool, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		auth:         svc,
		store:        store,
		cookieSecure: cookieSecure,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth surface
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.Handle("/v1/auth/refresh", a.withRefreshCookie(http.HandlerFunc(a.handleRefresh)))
	a.mux.Handle("/v1/auth/logout", a.withRefreshCookie(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/v1/auth/me", a.withAccessToken(http.HandlerFunc(a.handleMe)))

	// role catalog, admin only
	a.mux.Handle("/v1/roles", a.withAccessToken(RequireRole("admin")(http.HandlerFunc(a.handleRoles))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the route table.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	if len(a.corsOrigins) > 0 {
		h = CORS(a.corsOrigins)(h)
	}
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fitbase-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "fitbase-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
