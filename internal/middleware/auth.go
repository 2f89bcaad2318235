package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

const SessionCookieName = "niramay_session"

// Authenticate resolves the session cookie to an AuthContext. The
// profile's role, not anything on the session, decides permissions.
func Authenticate(r *http.Request, sessions *store.SessionStore, profiles *store.ProfileStore) (auth.AuthContext, *model.Profile, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.AuthContext{}, nil, false
	}

	sess, err := sessions.GetByToken(cookie.Value)
	if err != nil || sess == nil {
		return auth.AuthContext{}, nil, false
	}

	profile, err := profiles.GetByID(sess.UserID)
	if err != nil || profile == nil {
		return auth.AuthContext{}, nil, false
	}

	return auth.AuthContext{
		UserID:    sess.UserID,
		Role:      profile.Role,
		SessionID: sess.ID,
	}, profile, true
}

// RequireAuth validates the session cookie and populates AuthContext.
func RequireAuth(sessions *store.SessionStore, profiles *store.ProfileStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _, ok := Authenticate(r, sessions, profiles)
			if !ok {
				writeError(w, http.StatusUnauthorized, "sign in required")
				return
			}
			if ri := infoFrom(r.Context()); ri != nil {
				ri.userID = ac.UserID
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireRole lets the request through only if the caller holds one of roles.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.HasRole(r.Context(), roles...) {
				writeError(w, http.StatusForbidden, "you do not have access to this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)(next)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
