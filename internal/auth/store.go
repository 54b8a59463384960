package auth

import "context"

// Store describes the persistence operations required by the credential
// lifecycle. The Token Issuer is the only writer of session-family state.
type Store interface {
	Users(ctx context.Context) UserStore
	Families(ctx context.Context) FamilyStore
}

// UserStore manages the clinic user directory.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, clinicID, email string) (*User, error)
}

// FamilyStore manages session families. CASAdvanceGeneration is the only
// mutation path for rotation: it must be a single atomic conditional write,
// never a read-then-write pair.
type FamilyStore interface {
	Create(ctx context.Context, fam *SessionFamily) error
	Get(ctx context.Context, id string) (*SessionFamily, error)
	// CASAdvanceGeneration advances the family's generation by one and
	// swaps in the new refresh hash, if and only if the stored generation
	// still equals fromGeneration and the family is not revoked. Returns
	// whether the swap happened.
	CASAdvanceGeneration(ctx context.Context, familyID string, fromGeneration int64, newRefreshHash string) (bool, error)
	// Revoke marks a family revoked. Idempotent; unknown ids are a no-op.
	Revoke(ctx context.Context, familyID string) error
}
