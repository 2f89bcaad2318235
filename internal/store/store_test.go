package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/niramay/internal/database"
	"github.com/dukerupert/niramay/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedProfile creates a user and a matching profile.
func seedProfile(t *testing.T, db *sql.DB, p model.Profile) *model.Profile {
	t.Helper()
	u, err := NewUserStore(db).Create(p.Email, "hash", model.SignupMetadata{Name: p.Name})
	if err != nil {
		t.Fatalf("create user %s: %v", p.Email, err)
	}
	p.ID = u.ID
	created, err := NewProfileStore(db).Create(p)
	if err != nil {
		t.Fatalf("create profile %s: %v", p.Email, err)
	}
	return created
}
