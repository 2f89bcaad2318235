package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/niramay/internal/account"
	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/middleware"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

type sessionLookup func(r *http.Request) (auth.AuthContext, *model.Profile, bool)

type AuthHandler struct {
	accounts     *account.Service
	sessionStore *store.SessionStore
	lookup       sessionLookup
	timeout      time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler builds the auth endpoints. timeout bounds the session
// bootstrap lookup.
func NewAuthHandler(accounts *account.Service, ss *store.SessionStore, ps *store.ProfileStore, timeout time.Duration, baseURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		sessionStore: ss,
		lookup: func(r *http.Request) (auth.AuthContext, *model.Profile, bool) {
			return middleware.Authenticate(r, ss, ps)
		},
		timeout:      timeout,
		secureCookie: strings.HasPrefix(baseURL, "https://"),
		logger:       logger,
	}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"phone"`
	Address  string `json:"address" validate:"max=300"`
	Ward     string `json:"ward" validate:"max=100"`
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.accounts.SignUp(req.Email, req.Password, model.SignupMetadata{
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
		Ward:    strings.TrimSpace(req.Ward),
	})
	if errors.Is(err, account.ErrEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("sign up", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": u.ID, "email": u.Email})
}

type signinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signin handles POST /api/auth/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.accounts.SignIn(req.Email, req.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("sign in", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	sess, err := h.sessionStore.Create(profile.ID)
	if err != nil {
		h.logger.Error("create session", "user_id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("signed in", "user_id", profile.ID, "role", profile.Role)
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

// Signout handles POST /api/auth/signout
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type sessionResult struct {
	ac      auth.AuthContext
	profile *model.Profile
	ok      bool
}

// Session handles GET /api/auth/session. The lookup races a fixed
// timeout; a slow or failed lookup is reported as no session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	done := make(chan sessionResult, 1)
	go func() {
		ac, p, ok := h.lookup(r)
		done <- sessionResult{ac: ac, profile: p, ok: ok}
	}()

	select {
	case res := <-done:
		if !res.ok {
			writeJSON(w, http.StatusOK, map[string]any{"session": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session": map[string]any{"user_id": res.ac.UserID, "role": res.ac.Role},
			"profile": res.profile,
		})
	case <-ctx.Done():
		h.logger.Warn("session bootstrap timed out", "timeout", h.timeout)
		writeJSON(w, http.StatusOK, map[string]any{"session": nil})
	}
}
