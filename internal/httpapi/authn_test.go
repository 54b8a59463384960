package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/auth"
)

func newVerifierFixture(t *testing.T) (*auth.Issuer, *auth.TokenPair) {
	t.Helper()
	iss := auth.NewIssuer(auth.NewMemStore(), []byte("test-secret"))
	pair, err := iss.Issue(context.Background(), auth.Principal{
		UserID:   "u-1",
		ClinicID: "clinic-1",
		Role:     auth.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return iss, pair
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			t.Error("handler reached without principal in context")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireRolesPassesMatchingRole(t *testing.T) {
	iss, pair := newVerifierFixture(t)
	h := RequireRoles(iss, audit.NopRecorder{}, auth.RoleDoctor, auth.RoleAdmin)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireRolesAnyAuthenticated(t *testing.T) {
	iss, pair := newVerifierFixture(t)
	h := RequireRoles(iss, audit.NopRecorder{})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rr.Code)
	}
}

func TestRequireRolesMissingToken(t *testing.T) {
	iss, _ := newVerifierFixture(t)
	h := RequireRoles(iss, audit.NopRecorder{}, auth.RoleAdmin)(okHandler(t))

	for _, header := range []string{"", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: want 401, got %d", header, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("header %q: missing WWW-Authenticate", header)
		}
	}
}

func TestRequireRolesDeniedRoleIsAudited(t *testing.T) {
	iss, pair := newVerifierFixture(t)
	store := audit.NewMemStore()
	engine := audit.New(store, audit.Synchronous())
	h := RequireRoles(iss, engine, auth.RoleAdmin)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rr.Code)
	}

	entries, err := store.Query(context.Background(), audit.Filter{
		ClinicID: "clinic-1",
		Action:   audit.ActionAccessDenied,
	}, 10, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want exactly 1 access_denied entry, got %d", len(entries))
	}
	if entries[0].Resource != "/v1/audit" {
		t.Fatalf("resource: want /v1/audit, got %q", entries[0].Resource)
	}
}
