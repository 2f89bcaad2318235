package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/database"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

type authEnv struct {
	db       *sql.DB
	sessions *store.SessionStore
	profiles *store.ProfileStore
	users    *store.UserStore
}

func setupAuthMiddlewareDB(t *testing.T) authEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return authEnv{
		db:       db,
		sessions: store.NewSessionStore(db, time.Hour),
		profiles: store.NewProfileStore(db),
		users:    store.NewUserStore(db),
	}
}

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthNoCookie(t *testing.T) {
	env := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	RequireAuth(env.sessions, env.profiles)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	env := setupAuthMiddlewareDB(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	RequireAuth(env.sessions, env.profiles)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthWithoutProfile(t *testing.T) {
	env := setupAuthMiddlewareDB(t)

	u, _ := env.users.Create("alice@example.com", "hash", model.SignupMetadata{Name: "Alice"})
	sess, _ := env.sessions.Create(u.ID)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	RequireAuth(env.sessions, env.profiles)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	env := setupAuthMiddlewareDB(t)

	u, _ := env.users.Create("alice@example.com", "hash", model.SignupMetadata{Name: "Alice"})
	env.profiles.Create(model.Profile{ID: u.ID, Role: model.RoleSubworker, Name: "Alice", Email: u.Email})
	sess, _ := env.sessions.Create(u.ID)

	var gotAC auth.AuthContext
	handler := RequireAuth(env.sessions, env.profiles)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.UserID != u.ID {
		t.Errorf("UserID = %d, want %d", gotAC.UserID, u.ID)
	}
	if gotAC.Role != model.RoleSubworker {
		t.Errorf("Role = %q, want %q", gotAC.Role, model.RoleSubworker)
	}
	if gotAC.SessionID != sess.ID {
		t.Errorf("SessionID = %d, want %d", gotAC.SessionID, sess.ID)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role model.Role
		want int
	}{
		{model.RoleAdmin, http.StatusOK},
		{model.RoleSubworker, http.StatusOK},
		{model.RoleCitizen, http.StatusForbidden},
		{"", http.StatusForbidden},
	}

	handler := RequireRole(model.RoleAdmin, model.RoleSubworker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		ctx := auth.WithAuth(context.Background(), auth.AuthContext{Role: tt.role})
		req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("role %q: status = %d, want %d", tt.role, rec.Code, tt.want)
		}
	}
}

func TestRequireAdminForbidden(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{Role: model.RoleCitizen})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	RequireAdmin(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
