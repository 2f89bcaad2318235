package store

import (
	"testing"

	"github.com/dukerupert/niramay/internal/model"
)

func TestUserCreate(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	meta := model.SignupMetadata{Name: "Asha", Phone: "9876543210", Address: "12 MG Road, Bengaluru", Ward: "Ward 12"}
	u, err := us.Create("  Asha@Example.com ", "hash", meta)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Email != "asha@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "asha@example.com")
	}
	if u.Metadata != meta {
		t.Errorf("metadata = %+v, want %+v", u.Metadata, meta)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	if _, err := us.Create("asha@example.com", "hash", model.SignupMetadata{}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := us.Create("ASHA@example.com", "hash", model.SignupMetadata{}); err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestUserGetByEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	created, _ := us.Create("asha@example.com", "hash", model.SignupMetadata{Name: "Asha"})

	u, err := us.GetByEmail("Asha@Example.COM")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("get by email = %+v, want id %d", u, created.ID)
	}

	missing, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}
