package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/ledger"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
	"github.com/dukerupert/niramay/internal/websocket"
)

// RewardHandler serves the eco-store: items, redemptions and balances.
type RewardHandler struct {
	items   *store.ItemStore
	rewards *store.RewardStore
	ledger  *ledger.Ledger
	hub     Broadcaster
	logger  *slog.Logger
}

func NewRewardHandler(is *store.ItemStore, rs *store.RewardStore, l *ledger.Ledger, hub Broadcaster, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{items: is, rewards: rs, ledger: l, hub: hub, logger: logger}
}

type itemRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	PointCost   int    `json:"point_cost" validate:"gt=0"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	IsActive    *bool  `json:"is_active"`
}

func (req itemRequest) active() bool {
	return req.IsActive == nil || *req.IsActive
}

// ListItems handles GET /api/store/items
func (h *RewardHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	var (
		items []model.EcoStoreItem
		err   error
	)
	if auth.IsAdmin(r.Context()) && r.URL.Query().Get("all") == "true" {
		items, err = h.items.List()
	} else {
		items, err = h.items.ListActive()
	}
	if err != nil {
		h.logger.Error("list store items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(items))
}

// CreateItem handles POST /api/store/items
func (h *RewardHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.items.Create(strings.TrimSpace(req.Name), strings.TrimSpace(req.Description), req.PointCost, req.Quantity, req.active())
	if err != nil {
		h.logger.Error("create store item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create item")
		return
	}
	broadcast(h.hub, websocket.NewMessage(websocket.EntityStoreItem, "created", item.ID, nil))
	writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/store/items/{id}
func (h *RewardHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req itemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.items.Update(id, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description), req.PointCost, req.Quantity, req.active())
	if err != nil {
		h.logger.Error("update store item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	broadcast(h.hub, websocket.NewMessage(websocket.EntityStoreItem, "updated", item.ID, nil))
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/store/items/{id}
func (h *RewardHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	item, err := h.items.GetByID(id)
	if err != nil {
		h.logger.Error("get store item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err := h.items.Delete(id); err != nil {
		h.logger.Error("delete store item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	broadcast(h.hub, websocket.NewMessage(websocket.EntityStoreItem, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type redeemRequest struct {
	Quantity        int    `json:"quantity"`
	DeliveryAddress string `json:"delivery_address"`
}

// Redeem handles POST /api/store/items/{id}/redeem. Quantity and address
// rules are enforced by the ledger so the same messages reach every caller.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.ledger.Redeem(r.Context(), ledger.RedeemRequest{
		UserID:          auth.UserID(r.Context()),
		ItemID:          id,
		Quantity:        req.Quantity,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		h.ledgerError(w, "redeem item", err)
		return
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityStoreItem, "updated", order.ItemID, nil))
	writeJSON(w, http.StatusCreated, order)
}

// ListRedemptions handles GET /api/redemptions
func (h *RewardHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	var (
		list []model.Redemption
		err  error
	)
	if auth.IsAdmin(r.Context()) {
		list, err = h.rewards.ListRedemptions()
	} else {
		list, err = h.rewards.ListRedemptionsByUser(auth.UserID(r.Context()))
	}
	if err != nil {
		h.logger.Error("list redemptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list redemptions")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

// GetPointBalance handles GET /api/points
func (h *RewardHandler) GetPointBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.rewards.GetPointBalance(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get point balance", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	if bal == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

type adjustRequest struct {
	Points int    `json:"points" validate:"ne=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// Adjust handles POST /api/admin/points/{id}
func (h *RewardHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.ledger.Adjust(r.Context(), userID, req.Points, strings.TrimSpace(req.Reason))
	if err != nil {
		h.ledgerError(w, "adjust points", err)
		return
	}
	h.logger.Info("points adjusted", "user_id", userID, "points", req.Points, "by", auth.UserID(r.Context()))
	writeJSON(w, http.StatusCreated, entry)
}

// ledgerError maps ledger error categories to responses. Write failures
// are logged with detail and reported generically.
func (h *RewardHandler) ledgerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientResource):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
