package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/niramay/internal/account"
	"github.com/dukerupert/niramay/internal/assignment"
	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/websocket"
)

type WorkerHandler struct {
	tasks    *assignment.Service
	accounts *account.Service
	hub      Broadcaster
	logger   *slog.Logger
}

func NewWorkerHandler(tasks *assignment.Service, accounts *account.Service, hub Broadcaster, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{tasks: tasks, accounts: accounts, hub: hub, logger: logger}
}

// List handles GET /api/workers
func (h *WorkerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := model.WorkerStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	mode, err := assignment.ParseSortMode(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workers, err := h.tasks.Roster(status, q.Get("search"), mode)
	if err != nil {
		h.logger.Error("list workers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(workers))
}

// Eligibility handles GET /api/workers/{id}/eligibility?report_id=
func (h *WorkerHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	workerID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	reportID, err := strconv.ParseInt(r.URL.Query().Get("report_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "report_id is required")
		return
	}

	err = h.tasks.Eligibility(reportID, workerID)
	var inel *assignment.IneligibleError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"eligible": true, "reason": ""})
	case errors.As(err, &inel):
		writeJSON(w, http.StatusOK, map[string]any{"eligible": false, "reason": inel.Reason})
	case errors.Is(err, assignment.ErrReportNotFound), errors.Is(err, assignment.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("check eligibility", "report_id", reportID, "worker_id", workerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check eligibility")
	}
}

type createWorkerRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Name         string `json:"name" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"phone"`
	Ward         string `json:"ward" validate:"max=100"`
	AssignedWard string `json:"assigned_ward" validate:"max=100"`
}

// Create handles POST /api/workers
func (h *WorkerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWorkerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.accounts.CreateWithProfile(req.Email, req.Password, model.SignupMetadata{
		Name:         strings.TrimSpace(req.Name),
		Role:         model.RoleSubworker,
		Phone:        strings.TrimSpace(req.Phone),
		Ward:         strings.TrimSpace(req.Ward),
		AssignedWard: strings.TrimSpace(req.AssignedWard),
	})
	if errors.Is(err, account.ErrEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create worker", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create worker")
		return
	}

	h.logger.Info("worker created", "worker_id", p.ID, "ward", p.Ward, "assigned_ward", p.AssignedWard)
	ward := p.AssignedWard
	if ward == "" {
		ward = p.Ward
	}
	broadcast(h.hub, websocket.NewMessage(websocket.EntityProfile, "created", p.ID, nil).InWard(ward))
	writeJSON(w, http.StatusCreated, p)
}

type statusRequest struct {
	Status model.WorkerStatus `json:"status" validate:"required,oneof=available offline"`
}

// SetStatus handles PUT /api/workers/me/status
func (h *WorkerHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.tasks.SetStatus(r.Context(), auth.UserID(r.Context()), req.Status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, p)
	case errors.Is(err, assignment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, assignment.ErrHoldingTask):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, assignment.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("set worker status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update status")
	}
}
