package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPGFamilyCASAdvanceGeneration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	query := regexp.QuoteMeta(`update session_families
		 set generation = generation + 1, refresh_hash = $3, rotated_at = now()
		 where id = $1 and generation = $2 and not revoked`)

	t.Run("advances when generation matches", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("fam-1", int64(3), "newhash").
			WillReturnResult(sqlmock.NewResult(0, 1))

		swapped, err := store.Families(context.Background()).CASAdvanceGeneration(context.Background(), "fam-1", 3, "newhash")
		if err != nil {
			t.Fatalf("cas: %v", err)
		}
		if !swapped {
			t.Fatal("expected swap to succeed")
		}
	})

	t.Run("loses when another writer got there first", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("fam-1", int64(3), "newhash").
			WillReturnResult(sqlmock.NewResult(0, 0))

		swapped, err := store.Families(context.Background()).CASAdvanceGeneration(context.Background(), "fam-1", 3, "newhash")
		if err != nil {
			t.Fatalf("cas: %v", err)
		}
		if swapped {
			t.Fatal("expected swap to fail")
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFamilyGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "user_id", "clinic_id", "role", "generation", "refresh_hash", "revoked", "created_at", "rotated_at",
		}).AddRow("fam-1", "u-1", "clinic-1", "doctor", int64(2), "hash", false, now, now)
		mock.ExpectQuery("select .+ from session_families where id=\\$1").
			WithArgs("fam-1").WillReturnRows(rows)

		fam, err := store.Families(context.Background()).Get(context.Background(), "fam-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if fam.Generation != 2 || fam.Role != RoleDoctor {
			t.Fatalf("unexpected family: %+v", fam)
		}
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("select .+ from session_families where id=\\$1").
			WithArgs("fam-2").WillReturnError(sql.ErrNoRows)

		_, err := store.Families(context.Background()).Get(context.Background(), "fam-2")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "clinic_id", "email", "password_hash", "role", "status", "created_at", "updated_at",
	}).AddRow("u-1", "clinic-1", "doctor@clinic.example", "hash", "doctor", "active", now, now)
	mock.ExpectQuery("select .+ from users where clinic_id=\\$1 and lower\\(email\\)=lower\\(\\$2\\)").
		WithArgs("clinic-1", "doctor@clinic.example").WillReturnRows(rows)

	u, err := store.Users(context.Background()).FindByEmail(context.Background(), "clinic-1", "doctor@clinic.example")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if u.Role != RoleDoctor || u.Status != "active" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
