package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/auth"
	"clinicore.dev/internal/obs"
)

// ReadyProbe reports whether backing stores are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the HTTP-level tunables.
type Options struct {
	MaxBodyBytes  int64
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	issuer     *auth.Issuer
	engine     *audit.Engine
	readyProbe ReadyProbe
	version    string
	opts       Options
}

func New(svc *auth.Service, issuer *auth.Issuer, engine *audit.Engine, rp ReadyProbe, version string, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		issuer:     issuer,
		engine:     engine,
		readyProbe: rp,
		version:    version,
		opts:       opts,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// credential lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// administrative audit views
	adminOnly := RequireRoles(issuer, engine, auth.RoleAdmin)
	a.mux.Handle("/v1/audit", adminOnly(http.HandlerFunc(a.handleAuditList)))
	a.mux.Handle("/v1/audit/security", adminOnly(http.HandlerFunc(a.handleAuditSecurity)))
	a.mux.Handle("/v1/audit/stats", adminOnly(http.HandlerFunc(a.handleAuditStats)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler composes the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.opts.MaxBodyBytes > 0 {
		h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	}
	if a.opts.RateBurst > 0 && a.opts.RatePerSecond > 0 {
		h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "clinicore-api",
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
		"name":    "clinicore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
