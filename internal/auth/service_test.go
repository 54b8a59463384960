package auth

import (
	"context"
	"errors"
	"testing"

	"clinicore.dev/internal/audit"
)

func seedUser(t *testing.T, store *MemStore, status string) *User {
	t.Helper()
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &User{
		ID:           "u-1",
		ClinicID:     "clinic-1",
		Email:        "doctor@clinic.example",
		PasswordHash: hash,
		Role:         RoleDoctor,
		Status:       status,
	}
	if err := store.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestLoginSuccess(t *testing.T) {
	store := NewMemStore()
	seedUser(t, store, "active")
	rec := &captureRecorder{}
	svc := NewService(store, NewIssuer(store, []byte("test-secret"), WithAuditRecorder(rec)), rec)

	pair, err := svc.Login(context.Background(), "clinic-1", "doctor@clinic.example", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if got := rec.byAction(audit.ActionLoginSuccess); len(got) != 1 {
		t.Fatalf("want 1 login_success entry, got %d", len(got))
	}
}

func TestLoginFailures(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		email    string
		password string
	}{
		{"wrong password", "active", "doctor@clinic.example", "nope"},
		{"unknown user", "active", "nobody@clinic.example", "correct horse"},
		{"suspended account", "suspended", "doctor@clinic.example", "correct horse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemStore()
			seedUser(t, store, tc.status)
			rec := &captureRecorder{}
			svc := NewService(store, NewIssuer(store, []byte("test-secret")), rec)

			_, err := svc.Login(context.Background(), "clinic-1", tc.email, tc.password)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("want ErrUnauthorized, got %v", err)
			}
			if got := rec.byAction(audit.ActionLoginFailed); len(got) != 1 {
				t.Fatalf("want 1 login_failed entry, got %d", len(got))
			}
		})
	}
}

func TestLoginScopedToClinic(t *testing.T) {
	store := NewMemStore()
	seedUser(t, store, "active")
	svc := NewService(store, NewIssuer(store, []byte("test-secret")), audit.NopRecorder{})

	_, err := svc.Login(context.Background(), "clinic-2", "doctor@clinic.example", "correct horse")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cross-clinic login: want ErrUnauthorized, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	seedUser(t, store, "active")
	rec := &captureRecorder{}
	iss := NewIssuer(store, []byte("test-secret"))
	svc := NewService(store, iss, rec)

	pair, err := svc.Login(ctx, "clinic-1", "doctor@clinic.example", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, famID, err := iss.Session(pair.AccessToken)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	if err := svc.Logout(ctx, p, famID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	// Logging out twice is harmless.
	if err := svc.Logout(ctx, p, famID); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	if _, _, err := iss.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("rotate after logout: want ErrInvalidCredential, got %v", err)
	}
}
