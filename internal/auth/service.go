package auth

import (
	"context"
	"fmt"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/obs"
)

// Service wraps the Issuer with directory lookups: password login and
// session teardown.
type Service struct {
	store    Store
	issuer   *Issuer
	recorder audit.Recorder
}

func NewService(store Store, issuer *Issuer, rec audit.Recorder) *Service {
	if rec == nil {
		rec = audit.NopRecorder{}
	}
	return &Service{store: store, issuer: issuer, recorder: rec}
}

// Login authenticates an email/password pair within a clinic and opens a
// new session family. Every failure path returns ErrUnauthorized without
// distinguishing cause to the caller.
func (s *Service) Login(ctx context.Context, clinicID, email, password string) (*TokenPair, error) {
	fail := func(reason string) (*TokenPair, error) {
		s.recorder.Record(ctx, audit.Entry{
			ClinicID: clinicID,
			Action:   audit.ActionLoginFailed,
			Severity: audit.SeverityMedium,
			Metadata: map[string]string{"reason": reason},
		})
		obs.ObserveLogin("failure")
		return nil, ErrUnauthorized
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, clinicID, email)
	if err != nil {
		if err == ErrNotFound {
			return fail("unknown_user")
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.Status != "active" {
		return fail("inactive_account")
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return fail("bad_password")
	}

	pair, err := s.issuer.Issue(ctx, Principal{
		UserID:   user.ID,
		ClinicID: user.ClinicID,
		Role:     user.Role,
	})
	if err != nil {
		return nil, err
	}
	obs.ObserveLogin("success")
	return pair, nil
}

// Logout revokes the family behind the presented principal's session.
// Idempotent: revoking an unknown or already-revoked family succeeds.
func (s *Service) Logout(ctx context.Context, p Principal, familyID string) error {
	if err := s.issuer.Revoke(ctx, familyID); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:  p.UserID,
		ClinicID: p.ClinicID,
		Action:   audit.ActionLogout,
		Severity: audit.SeverityInfo,
		Resource: "session:" + familyID,
	})
	return nil
}
