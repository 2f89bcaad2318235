package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	ns := store.NewNotificationStore(e.db)
	h := NewNotificationHandler(ns, e.logger)
	asha := e.profile(t, model.Profile{Email: "asha@example.com", Name: "Asha"})
	meera := e.profile(t, model.Profile{Email: "meera@example.com", Name: "Meera"})

	first, err := ns.Create(asha.ID, "Eco-points earned", "You earned 20 eco-points.", model.NotifTypePointsEarned, nil)
	require.NoError(t, err)
	_, err = ns.Create(asha.ID, "Redemption confirmed", "Your order is on its way.", model.NotifTypeRedemption, nil)
	require.NoError(t, err)

	unread := func() int {
		rec := httptest.NewRecorder()
		h.List(rec, as(httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true", nil), asha))
		require.Equal(t, http.StatusOK, rec.Code)
		var list []model.Notification
		decodeBody(t, rec, &list)
		return len(list)
	}
	assert.Equal(t, 2, unread())

	rec := httptest.NewRecorder()
	h.MarkRead(rec, as(withID(httptest.NewRequest(http.MethodPost, "/", nil), first.ID), meera))
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot mark it read")

	rec = httptest.NewRecorder()
	h.MarkRead(rec, as(withID(httptest.NewRequest(http.MethodPost, "/", nil), first.ID), asha))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, unread())

	rec = httptest.NewRecorder()
	h.MarkAllRead(rec, as(httptest.NewRequest(http.MethodPost, "/", nil), asha))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated": 1}`, rec.Body.String())
	assert.Equal(t, 0, unread())
}
