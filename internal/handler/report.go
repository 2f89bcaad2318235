package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/niramay/internal/assignment"
	"github.com/dukerupert/niramay/internal/auth"
	"github.com/dukerupert/niramay/internal/filestore"
	"github.com/dukerupert/niramay/internal/geo"
	"github.com/dukerupert/niramay/internal/maps"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/notify"
	"github.com/dukerupert/niramay/internal/store"
	"github.com/dukerupert/niramay/internal/vision"
	"github.com/dukerupert/niramay/internal/websocket"
)

const maxReportImages = 5

// Report creation makes two outbound calls before the insert. Their
// budgets, plus notice delivery, stay well inside the server's write
// timeout so a committed report is always answered.
const (
	geocodeTimeout  = 5 * time.Second
	classifyTimeout = 15 * time.Second
)

// Classifier rates a waste photo. *vision.Client satisfies it.
type Classifier interface {
	Classify(ctx context.Context, in vision.Input) vision.Result
}

// Geocoder resolves coordinates to an address. *maps.Service satisfies it.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p geo.Point) (maps.Place, error)
}

type ReportHandler struct {
	reports  *store.ReportStore
	tasks    *assignment.Service
	files    filestore.Store
	vision   Classifier
	geocoder Geocoder
	notifier Notifier
	hub      Broadcaster
	logger   *slog.Logger

	geocodeTimeout  time.Duration
	classifyTimeout time.Duration
}

func NewReportHandler(rs *store.ReportStore, tasks *assignment.Service, files filestore.Store, vc Classifier, gc Geocoder, n Notifier, hub Broadcaster, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports:  rs,
		tasks:    tasks,
		files:    files,
		vision:   vc,
		geocoder: gc,
		notifier: n,
		hub:      hub,
		logger:   logger,

		geocodeTimeout:  geocodeTimeout,
		classifyTimeout: classifyTimeout,
	}
}

// discard removes stored objects that no record will point at.
func (h *ReportHandler) discard(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := h.files.Delete(ctx, key); err != nil {
			h.logger.Warn("delete orphaned image", "key", key, "error", err)
		}
	}
}

type upload struct {
	data        []byte
	contentType string
}

// readImage loads one multipart image, enforcing the size limit and the
// accepted formats.
func readImage(fh *multipart.FileHeader) (upload, error) {
	if fh.Size > vision.MaxImageBytes {
		return upload{}, vision.ErrImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, vision.MaxImageBytes+1))
	if err != nil {
		return upload{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > vision.MaxImageBytes {
		return upload{}, vision.ErrImageTooLarge
	}
	ct, err := vision.DetectImageType(data)
	if err != nil {
		return upload{}, err
	}
	return upload{data: data, contentType: ct}, nil
}

func imageError(err error) (int, string) {
	switch {
	case errors.Is(err, vision.ErrImageTooLarge):
		return http.StatusBadRequest, "each image must be 4 MB or smaller"
	case errors.Is(err, vision.ErrUnsupportedImage), errors.Is(err, vision.ErrEmptyImage):
		return http.StatusBadRequest, "images must be JPEG, PNG or WEBP"
	}
	return http.StatusBadRequest, "could not read image"
}

func parsePoint(latStr, lngStr string) (geo.Point, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: lat is not a number", geo.ErrInvalidCoordinates)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: lng is not a number", geo.ErrInvalidCoordinates)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	return p, p.Validate()
}

// Create handles POST /api/reports
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportImages*vision.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	point, err := parsePoint(r.FormValue("lat"), r.FormValue("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one image is required")
		return
	}
	if len(headers) > maxReportImages {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d images are allowed", maxReportImages))
		return
	}

	uploads := make([]upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readImage(fh)
		if err != nil {
			status, msg := imageError(err)
			writeError(w, status, msg)
			return
		}
		uploads = append(uploads, u)
	}

	description := strings.TrimSpace(r.FormValue("description"))
	address := strings.TrimSpace(r.FormValue("address"))
	ward := strings.TrimSpace(r.FormValue("ward"))
	if address == "" || ward == "" {
		ctx, cancel := context.WithTimeout(r.Context(), h.geocodeTimeout)
		place, err := h.geocoder.ReverseGeocode(ctx, point)
		cancel()
		if err != nil && !errors.Is(err, maps.ErrNotConfigured) {
			h.logger.Warn("reverse geocode report", "lat", point.Lat, "lng", point.Lng, "error", err)
		}
		if address == "" {
			address = place.Address
		}
		if ward == "" {
			ward = place.Ward
		}
	}

	keys := make([]string, 0, len(uploads))
	for _, u := range uploads {
		key, err := h.files.Put(r.Context(), filestore.PrefixReports, u.data, u.contentType)
		if err != nil {
			h.logger.Error("store report image", "error", err)
			h.discard(r.Context(), keys...)
			writeError(w, http.StatusInternalServerError, "failed to store image")
			return
		}
		keys = append(keys, key)
	}

	location := address
	if location == "" {
		location = fmt.Sprintf("%.5f, %.5f", point.Lat, point.Lng)
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.classifyTimeout)
	result := h.vision.Classify(ctx, vision.Input{
		Image:       uploads[0].data,
		Location:    location,
		Description: description,
	})
	cancel()

	userID := auth.UserID(r.Context())
	report, err := h.reports.Create(model.Report{
		UserID:        userID,
		Images:        keys,
		Description:   description,
		Address:       address,
		Ward:          ward,
		Lat:           point.Lat,
		Lng:           point.Lng,
		PriorityLevel: result.Priority,
		EcoPoints:     result.Priority.Points(),
		AIAnalysis:    result.Analysis,
	})
	if err != nil {
		h.logger.Error("create report", "error", err)
		h.discard(r.Context(), keys...)
		writeError(w, http.StatusInternalServerError, "failed to create report")
		return
	}

	h.logger.Info("report created", "report_id", report.ID, "user_id", userID,
		"priority", report.PriorityLevel, "ai_fallback", result.Fallback)

	rid := report.ID
	h.notifier.SendToAdmins(r.Context(), notify.Notice{
		Title:    "New waste report",
		Message:  fmt.Sprintf("Report #%d (%s priority) at %s.", report.ID, report.PriorityLevel, location),
		Type:     model.NotifTypeReportSubmitted,
		ReportID: &rid,
	})
	broadcast(h.hub, websocket.NewMessage(websocket.EntityReport, "created", report.ID, nil).InWard(report.Ward))

	writeJSON(w, http.StatusCreated, map[string]any{
		"report":           report,
		"suggested_points": result.SuggestedPoints,
	})
}

// List handles GET /api/reports
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	f := store.ReportFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		f.Status = model.ReportStatus(s)
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	switch ac.Role {
	case model.RoleAdmin:
	case model.RoleSubworker:
		f.AssignedTo = ac.UserID
	default:
		f.UserID = ac.UserID
	}

	reports, err := h.reports.List(f)
	if err != nil {
		h.logger.Error("list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(reports))
}

func canView(ac auth.AuthContext, rep *model.Report) bool {
	if ac.Role == model.RoleAdmin || rep.UserID == ac.UserID {
		return true
	}
	return rep.AssignedTo != nil && *rep.AssignedTo == ac.UserID
}

// loadVisible fetches the {id} report and checks the caller may see it.
// It writes the error response itself when it returns nil.
func (h *ReportHandler) loadVisible(w http.ResponseWriter, r *http.Request) *model.Report {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	rep, err := h.reports.GetByID(id)
	if err != nil {
		h.logger.Error("get report", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return nil
	}
	ac, _ := auth.FromContext(r.Context())
	if rep == nil || !canView(ac, rep) {
		writeError(w, http.StatusNotFound, "report not found")
		return nil
	}
	return rep
}

// Get handles GET /api/reports/{id}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	if rep := h.loadVisible(w, r); rep != nil {
		writeJSON(w, http.StatusOK, rep)
	}
}

type assignRequest struct {
	WorkerID int64 `json:"worker_id" validate:"required,gt=0"`
}

// Assign handles POST /api/reports/{id}/assign
func (h *ReportHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.tasks.Assign(r.Context(), id, req.WorkerID)
	if err != nil {
		h.taskError(w, "assign report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Unassign handles POST /api/reports/{id}/unassign
func (h *ReportHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rep, err := h.tasks.Unassign(r.Context(), id)
	if err != nil {
		h.taskError(w, "unassign report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Start handles POST /api/reports/{id}/start
func (h *ReportHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rep, err := h.tasks.Start(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.taskError(w, "start report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Proof handles POST /api/reports/{id}/proof
func (h *ReportHandler) Proof(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, vision.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	point, err := parsePoint(r.FormValue("lat"), r.FormValue("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	headers := r.MultipartForm.File["image"]
	if len(headers) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one proof image is required")
		return
	}
	u, err := readImage(headers[0])
	if err != nil {
		status, msg := imageError(err)
		writeError(w, status, msg)
		return
	}

	workerID := auth.UserID(r.Context())
	if _, err := h.tasks.CheckProof(id, workerID, point); err != nil {
		h.taskError(w, "check proof", err)
		return
	}

	key, err := h.files.Put(r.Context(), filestore.PrefixProofs, u.data, u.contentType)
	if err != nil {
		h.logger.Error("store proof image", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	rep, err := h.tasks.SubmitProof(r.Context(), id, workerID, key, point)
	if err != nil {
		h.discard(r.Context(), key)
		h.taskError(w, "submit proof", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Approve handles POST /api/reports/{id}/approve
func (h *ReportHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rep, err := h.tasks.Approve(r.Context(), id)
	if err != nil {
		h.taskError(w, "approve report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Reject handles POST /api/reports/{id}/reject
func (h *ReportHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req rejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.tasks.Reject(r.Context(), id, req.Reason)
	if err != nil {
		h.taskError(w, "reject report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Directions handles GET /api/reports/{id}/directions
func (h *ReportHandler) Directions(w http.ResponseWriter, r *http.Request) {
	rep := h.loadVisible(w, r)
	if rep == nil {
		return
	}
	var origin geo.Point
	q := r.URL.Query()
	if q.Get("origin_lat") != "" || q.Get("origin_lng") != "" {
		p, err := parsePoint(q.Get("origin_lat"), q.Get("origin_lng"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		origin = p
	}
	dest := geo.Point{Lat: rep.Lat, Lng: rep.Lng}
	writeJSON(w, http.StatusOK, map[string]string{"url": maps.DirectionsURL(origin, dest)})
}

// File handles GET /api/files/{key...}
func (h *ReportHandler) File(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !filestore.ValidKey(key) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	obj, err := h.files.Get(r.Context(), key)
	if errors.Is(err, filestore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		h.logger.Error("get file", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get file")
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(obj.Data)
}

// taskError maps assignment errors to responses.
func (h *ReportHandler) taskError(w http.ResponseWriter, op string, err error) {
	var inel *assignment.IneligibleError
	var far *geo.ProofError
	switch {
	case errors.As(err, &inel):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &far):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, geo.ErrInvalidCoordinates), errors.Is(err, assignment.ErrReasonRequired),
		errors.Is(err, assignment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, assignment.ErrReportNotFound), errors.Is(err, assignment.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, assignment.ErrNotAssignee):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, assignment.ErrAlreadyAssigned), errors.Is(err, assignment.ErrInvalidTransition),
		errors.Is(err, assignment.ErrHoldingTask):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
