package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/niramay/internal/model"
)

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var seen string
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/9", nil))

	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Equal(t, id, seen)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=404")
	assert.Contains(t, buf.String(), "request_id="+id)
	assert.NotContains(t, buf.String(), "user_id=")
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(slog.New(slog.NewTextHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "edge-1234")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "edge-1234", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "level=INFO")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 65))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRequestLoggerRecordsAuthenticatedUser(t *testing.T) {
	env := setupAuthMiddlewareDB(t)
	u, err := env.users.Create("asha@example.com", "hash", model.SignupMetadata{Name: "Asha"})
	require.NoError(t, err)
	_, err = env.profiles.Create(model.Profile{ID: u.ID, Name: "Asha", Email: u.Email})
	require.NoError(t, err)
	sess, err := env.sessions.Create(u.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestLogger(logger)(RequireAuth(env.sessions, env.profiles)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/api/points", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), "user_id="+strconv.FormatInt(u.ID, 10))
}
