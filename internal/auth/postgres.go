package auth

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore      { return &userStore{db: s.db} }
func (s *PGStore) Families(context.Context) FamilyStore { return &familyStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, clinic_id, email, password_hash, role, status) values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.ClinicID, u.Email, u.PasswordHash, string(u.Role), u.Status,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, clinic_id, email, password_hash, role, status, created_at, updated_at
		 from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, clinicID, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, clinic_id, email, password_hash, role, status, created_at, updated_at
		 from users where clinic_id=$1 and lower(email)=lower($2)`, clinicID, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.ClinicID, &u.Email, &u.PasswordHash, &role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// Family store -------------------------------------------------------------
type familyStore struct{ db *sql.DB }

func (s *familyStore) Create(ctx context.Context, fam *SessionFamily) error {
	_, err := s.db.ExecContext(ctx,
		`insert into session_families(id, user_id, clinic_id, role, generation, refresh_hash, revoked, created_at, rotated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		fam.ID, fam.UserID, fam.ClinicID, string(fam.Role), fam.Generation,
		fam.RefreshHash, fam.Revoked, fam.CreatedAt, fam.RotatedAt,
	)
	return err
}

func (s *familyStore) Get(ctx context.Context, id string) (*SessionFamily, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, clinic_id, role, generation, refresh_hash, revoked, created_at, rotated_at
		 from session_families where id=$1`, id)
	var (
		fam  SessionFamily
		role string
	)
	if err := row.Scan(&fam.ID, &fam.UserID, &fam.ClinicID, &role, &fam.Generation,
		&fam.RefreshHash, &fam.Revoked, &fam.CreatedAt, &fam.RotatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fam.Role = Role(role)
	return &fam, nil
}

// CASAdvanceGeneration is a single conditional UPDATE; two concurrent
// rotations from the same generation can never both succeed.
func (s *familyStore) CASAdvanceGeneration(ctx context.Context, familyID string, fromGeneration int64, newRefreshHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update session_families
		 set generation = generation + 1, refresh_hash = $3, rotated_at = now()
		 where id = $1 and generation = $2 and not revoked`,
		familyID, fromGeneration, newRefreshHash,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *familyStore) Revoke(ctx context.Context, familyID string) error {
	_, err := s.db.ExecContext(ctx,
		`update session_families set revoked = true where id = $1`, familyID)
	return err
}
