package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/integrity"
)

type IntegrityHandler struct {
	scanner *integrity.Scanner
	logger  *slog.Logger
}

func NewIntegrityHandler(s *integrity.Scanner, logger *slog.Logger) *IntegrityHandler {
	return &IntegrityHandler{scanner: s, logger: logger}
}

// Scan handles GET /api/admin/integrity
func (h *IntegrityHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.scanner.Scan(r.Context())
	if err != nil {
		h.logger.Error("integrity scan", "error", err)
		writeError(w, http.StatusInternalServerError, "integrity scan failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Fix handles POST /api/admin/integrity/fix
func (h *IntegrityHandler) Fix(w http.ResponseWriter, r *http.Request) {
	fixes, err := h.scanner.AutoFix(r.Context())
	if err != nil {
		h.logger.Error("integrity fix", "error", err)
		writeError(w, http.StatusInternalServerError, "integrity fix failed")
		return
	}
	h.logger.Info("integrity fixes applied", "count", len(fixes), "by", auth.UserID(r.Context()))

	report, err := h.scanner.Scan(r.Context())
	if err != nil {
		h.logger.Error("integrity scan after fix", "error", err)
		writeError(w, http.StatusInternalServerError, "integrity scan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fixes":  emptyIfNil(fixes),
		"report": report,
	})
}
