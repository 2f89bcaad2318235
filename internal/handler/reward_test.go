package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/niramay/internal/ledger"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

type rewardEnv struct {
	*testEnv
	h       *RewardHandler
	items   *store.ItemStore
	citizen *model.Profile
	admin   *model.Profile
	item    *model.EcoStoreItem
}

func newRewardEnv(t *testing.T) *rewardEnv {
	t.Helper()
	e := &rewardEnv{testEnv: newTestEnv(t)}
	e.items = store.NewItemStore(e.db)
	e.h = NewRewardHandler(e.items, store.NewRewardStore(e.db), ledger.New(e.db, e.notifier, e.logger), e.hub, e.logger)
	e.citizen = e.profile(t, model.Profile{Email: "asha@example.com", Name: "Asha", EcoPoints: 100, Address: "12 MG Road, Bengaluru"})
	e.admin = e.profile(t, model.Profile{Email: "admin@example.com", Name: "Admin", Role: model.RoleAdmin})

	var err error
	e.item, err = e.items.Create("Compost bin", "20 litre", 40, 3, true)
	require.NoError(t, err)
	return e
}

func (e *rewardEnv) redeem(t *testing.T, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.h.Redeem(rec, as(withID(jsonRequest(http.MethodPost, "/", body), e.item.ID), e.citizen))
	return rec
}

func TestRedeem(t *testing.T) {
	e := newRewardEnv(t)

	rec := e.redeem(t, map[string]any{"quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order ledger.Order
	decodeBody(t, rec, &order)
	assert.Equal(t, "Compost bin", order.ItemName)
	assert.Equal(t, 80, order.PointsSpent)
	assert.Equal(t, 20, order.RemainingBalance)
	assert.Equal(t, "12 MG Road, Bengaluru", order.DeliveryAddress)
	assert.Equal(t, model.RedemptionPending, order.Status)

	item, err := e.items.GetByID(e.item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)
}

func TestRedeemErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"zero quantity", map[string]any{"quantity": 0}, http.StatusBadRequest},
		{"bad address", map[string]any{"quantity": 1, "delivery_address": "<script>"}, http.StatusBadRequest},
		{"not enough stock", map[string]any{"quantity": 4}, http.StatusConflict},
		{"not enough points", map[string]any{"quantity": 3}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newRewardEnv(t)
			rec := e.redeem(t, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			p, err := store.NewProfileStore(e.db).GetByID(e.citizen.ID)
			require.NoError(t, err)
			assert.Equal(t, 100, p.EcoPoints, "a failed redemption leaves the balance alone")
		})
	}
}

func TestRedeemUnknownItem(t *testing.T) {
	e := newRewardEnv(t)
	rec := httptest.NewRecorder()
	e.h.Redeem(rec, as(withID(jsonRequest(http.MethodPost, "/", map[string]any{"quantity": 1}), 999), e.citizen))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListItemsHidesInactiveFromCitizens(t *testing.T) {
	e := newRewardEnv(t)
	_, err := e.items.Create("Retired tote", "", 10, 5, false)
	require.NoError(t, err)

	list := func(p *model.Profile) []model.EcoStoreItem {
		rec := httptest.NewRecorder()
		e.h.ListItems(rec, as(httptest.NewRequest(http.MethodGet, "/api/store/items?all=true", nil), p))
		require.Equal(t, http.StatusOK, rec.Code)
		var items []model.EcoStoreItem
		decodeBody(t, rec, &items)
		return items
	}

	assert.Len(t, list(e.citizen), 1)
	assert.Len(t, list(e.admin), 2)
}

func TestItemCRUD(t *testing.T) {
	e := newRewardEnv(t)

	rec := httptest.NewRecorder()
	e.h.CreateItem(rec, as(jsonRequest(http.MethodPost, "/", map[string]any{"name": "Cloth bag", "point_cost": 15, "quantity": 10}), e.admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.EcoStoreItem
	decodeBody(t, rec, &created)
	assert.True(t, created.IsActive)

	rec = httptest.NewRecorder()
	e.h.CreateItem(rec, as(jsonRequest(http.MethodPost, "/", map[string]any{"name": "Free", "point_cost": 0}), e.admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	e.h.UpdateItem(rec, as(withID(jsonRequest(http.MethodPut, "/", map[string]any{
		"name": "Cloth bag", "point_cost": 20, "quantity": 8, "is_active": false,
	}), created.ID), e.admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.EcoStoreItem
	decodeBody(t, rec, &updated)
	assert.Equal(t, 20, updated.PointCost)
	assert.False(t, updated.IsActive)

	rec = httptest.NewRecorder()
	e.h.UpdateItem(rec, as(withID(jsonRequest(http.MethodPut, "/", map[string]any{"name": "x", "point_cost": 1}), 999), e.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	e.h.DeleteItem(rec, as(withID(httptest.NewRequest(http.MethodDelete, "/", nil), created.ID), e.admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	e.h.DeleteItem(rec, as(withID(httptest.NewRequest(http.MethodDelete, "/", nil), created.ID), e.admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdjustAndBalance(t *testing.T) {
	e := newRewardEnv(t)

	rec := httptest.NewRecorder()
	e.h.Adjust(rec, as(withID(jsonRequest(http.MethodPost, "/", map[string]any{"points": -150, "reason": "Correction"}), e.citizen.ID), e.admin))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	e.h.Adjust(rec, as(withID(jsonRequest(http.MethodPost, "/", map[string]any{"points": 25, "reason": "Cleanup drive"}), e.citizen.ID), e.admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	e.h.GetPointBalance(rec, as(httptest.NewRequest(http.MethodGet, "/api/points", nil), e.citizen))
	require.Equal(t, http.StatusOK, rec.Code)
	var bal model.PointBalance
	decodeBody(t, rec, &bal)
	assert.Equal(t, 125, bal.Balance)
	assert.Equal(t, 25, bal.TotalEarned)
	require.Len(t, bal.Transactions, 1)
	assert.Equal(t, "Cleanup drive", bal.Transactions[0].Reason)
}

func TestListRedemptionsScoped(t *testing.T) {
	e := newRewardEnv(t)
	require.Equal(t, http.StatusCreated, e.redeem(t, map[string]any{"quantity": 1}).Code)
	other := e.profile(t, model.Profile{Email: "meera@example.com", Name: "Meera"})

	count := func(p *model.Profile) int {
		rec := httptest.NewRecorder()
		e.h.ListRedemptions(rec, as(httptest.NewRequest(http.MethodGet, "/api/redemptions", nil), p))
		require.Equal(t, http.StatusOK, rec.Code)
		var list []model.Redemption
		decodeBody(t, rec, &list)
		return len(list)
	}

	assert.Equal(t, 1, count(e.citizen))
	assert.Equal(t, 0, count(other))
	assert.Equal(t, 1, count(e.admin))
}
