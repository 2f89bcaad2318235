package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/niramay/internal/geo"
	"github.com/dukerupert/niramay/internal/ledger"
	"github.com/dukerupert/niramay/internal/metrics"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/notify"
	"github.com/dukerupert/niramay/internal/store"
	"github.com/dukerupert/niramay/internal/websocket"
)

var (
	ErrReportNotFound    = errors.New("report not found")
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrNotAssignee       = errors.New("report is not assigned to you")
	ErrAlreadyAssigned   = errors.New("report is already assigned")
	ErrInvalidTransition = errors.New("report is not in a state that allows this action")
	ErrInvalidStatus     = errors.New("status must be available or offline")
	ErrHoldingTask       = errors.New("finish or hand back your current task first")
	ErrReasonRequired    = errors.New("a rejection reason is required")
)

type Notifier interface {
	Send(ctx context.Context, n notify.Notice)
	SendToAdmins(ctx context.Context, n notify.Notice)
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type Service struct {
	db       *sql.DB
	reports  *store.ReportStore
	profiles *store.ProfileStore
	rewards  *store.RewardStore
	notifier Notifier
	hub      Broadcaster
	logger   *slog.Logger
}

func NewService(db *sql.DB, notifier Notifier, hub Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		reports:  store.NewReportStore(db),
		profiles: store.NewProfileStore(db),
		rewards:  store.NewRewardStore(db),
		notifier: notifier,
		hub:      hub,
		logger:   logger,
	}
}

func (s *Service) getReport(id int64) (*model.Report, error) {
	r, err := s.reports.GetByID(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrReportNotFound
	}
	return r, nil
}

func (s *Service) getWorker(id int64) (*model.Profile, error) {
	w, err := s.profiles.GetByID(id)
	if err != nil {
		return nil, err
	}
	if w == nil || w.Role != model.RoleSubworker {
		return nil, ErrWorkerNotFound
	}
	return w, nil
}

// Roster returns the filtered, sorted worker roster.
func (s *Service) Roster(status model.WorkerStatus, search string, mode SortMode) ([]model.WorkerSummary, error) {
	workers, err := s.profiles.ListWorkers()
	if err != nil {
		return nil, err
	}
	workers = Filter(workers, status, search)
	Sort(workers, mode)
	return workers, nil
}

// Eligibility checks a worker against a report without changing anything.
// It returns an *IneligibleError when the worker may not take it.
func (s *Service) Eligibility(reportID, workerID int64) error {
	report, err := s.getReport(reportID)
	if err != nil {
		return err
	}
	worker, err := s.getWorker(workerID)
	if err != nil {
		return err
	}
	return ValidateAssignment(*worker, report.Ward)
}

// Assign hands a submitted report to an eligible worker. The report and
// the worker's busy state change in one transaction; both updates are
// conditional so a concurrent assignment of either cannot interleave.
func (s *Service) Assign(ctx context.Context, reportID, workerID int64) (report *model.Report, err error) {
	defer func() { metrics.Assignments.WithLabelValues(assignOutcome(err)).Inc() }()

	report, err = s.getReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != model.ReportSubmitted || report.AssignedTo != nil {
		return nil, ErrAlreadyAssigned
	}
	worker, err := s.getWorker(workerID)
	if err != nil {
		return nil, err
	}
	if err := ValidateAssignment(*worker, report.Ward); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assignment: %w", err)
	}
	defer tx.Rollback()

	ok, err := s.reports.WithTx(tx).Assign(report.ID, worker.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyAssigned
	}

	ok, err = s.profiles.WithTx(tx).ClaimWorker(worker.ID, report.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &IneligibleError{Reason: ReasonActiveTask}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment: %w", err)
	}

	s.logger.Info("task assigned", "report_id", report.ID, "worker_id", worker.ID, "ward", report.Ward)

	rid := report.ID
	worker.Status = model.WorkerBusy
	worker.CurrentTaskID = &rid
	s.notifier.Send(ctx, notify.Notice{
		UserID:   worker.ID,
		Title:    "New task assigned",
		Message:  fmt.Sprintf("Report #%d at %s has been assigned to you.", report.ID, locationText(report)),
		Type:     model.NotifTypeTaskAssigned,
		ReportID: &rid,
		Email:    worker.Email,
	})
	s.notifier.Send(ctx, notify.Notice{
		UserID:   report.UserID,
		Title:    "Your report is being handled",
		Message:  fmt.Sprintf("A field worker has been assigned to report #%d.", report.ID),
		Type:     model.NotifTypeTaskAssigned,
		ReportID: &rid,
	})
	s.broadcastWorker(worker, "updated")
	s.broadcastReport(report, "assigned")

	return s.reports.GetByID(report.ID)
}

// Unassign takes a report back from its worker before work has been
// submitted for approval and frees the worker.
func (s *Service) Unassign(ctx context.Context, reportID int64) (*model.Report, error) {
	report, err := s.getReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.AssignedTo == nil || (report.Status != model.ReportAssigned && report.Status != model.ReportInProgress) {
		return nil, ErrInvalidTransition
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unassign: %w", err)
	}
	defer tx.Rollback()

	if err := s.reports.WithTx(tx).Unassign(report.ID); err != nil {
		return nil, err
	}
	released, err := s.profiles.WithTx(tx).ReleaseWorker(*report.AssignedTo, report.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unassign: %w", err)
	}
	if !released {
		s.logger.Warn("unassigned report whose worker was not holding it", "report_id", report.ID, "worker_id", *report.AssignedTo)
	}

	if w, err := s.profiles.GetByID(*report.AssignedTo); err == nil && w != nil {
		s.broadcastWorker(w, "updated")
	}
	s.broadcastReport(report, "unassigned")
	return s.reports.GetByID(report.ID)
}

// Start moves an assigned report to in-progress for its assignee.
func (s *Service) Start(ctx context.Context, reportID, workerID int64) (*model.Report, error) {
	report, err := s.getReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.AssignedTo == nil || *report.AssignedTo != workerID {
		return nil, ErrNotAssignee
	}
	ok, err := s.reports.Transition(report.ID, model.ReportInProgress, model.ReportAssigned)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.broadcastReport(report, "started")
	return s.reports.GetByID(report.ID)
}

// CheckProof validates that workerID may submit proof for the report from
// the given position: the report must be theirs, assigned or in progress,
// and the position within geo.ProofRadiusMeters of the report.
func (s *Service) CheckProof(reportID, workerID int64, at geo.Point) (*model.Report, error) {
	report, err := s.getReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.AssignedTo == nil || *report.AssignedTo != workerID {
		return nil, ErrNotAssignee
	}
	if report.Status != model.ReportAssigned && report.Status != model.ReportInProgress {
		return nil, ErrInvalidTransition
	}

	outcome := "accepted"
	_, err = geo.CheckProofDistance(geo.Point{Lat: report.Lat, Lng: report.Lng}, at)
	if err != nil {
		outcome = "too_far"
		if errors.Is(err, geo.ErrInvalidCoordinates) {
			outcome = "invalid"
		}
	}
	metrics.ProofChecks.WithLabelValues(outcome).Inc()
	if err != nil {
		return nil, err
	}
	return report, nil
}

// SubmitProof records the stored proof image and the worker's position
// and sends the report for admin approval.
func (s *Service) SubmitProof(ctx context.Context, reportID, workerID int64, image string, at geo.Point) (*model.Report, error) {
	report, err := s.CheckProof(reportID, workerID, at)
	if err != nil {
		return nil, err
	}
	if err := s.reports.SubmitProof(report.ID, image, at.Lat, at.Lng); err != nil {
		return nil, err
	}

	rid := report.ID
	s.notifier.SendToAdmins(ctx, notify.Notice{
		Title:    "Proof submitted",
		Message:  fmt.Sprintf("Proof of completion for report #%d is waiting for approval.", report.ID),
		Type:     model.NotifTypeProofSubmitted,
		ReportID: &rid,
	})
	s.broadcastReport(report, "proof_submitted")
	return s.reports.GetByID(report.ID)
}

// Approve closes a report awaiting approval: the worker is freed and the
// citizen is credited the report's eco-points, all in one transaction.
func (s *Service) Approve(ctx context.Context, reportID int64) (*model.Report, error) {
	report, err := s.getReport(reportID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approval: %w", err)
	}
	defer tx.Rollback()

	ok, err := s.reports.WithTx(tx).Approve(report.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	profiles := s.profiles.WithTx(tx)
	if report.AssignedTo != nil {
		released, err := profiles.ReleaseWorker(*report.AssignedTo, report.ID)
		if err != nil {
			return nil, err
		}
		if !released {
			s.logger.Warn("approved report whose worker was not holding it", "report_id", report.ID, "worker_id", *report.AssignedTo)
		}
	}

	rid := report.ID
	reason := fmt.Sprintf("Report #%d approved", report.ID)
	if _, err := ledger.Apply(profiles, s.rewards.WithTx(tx), report.UserID, &rid, report.EcoPoints, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}

	s.logger.Info("report approved", "report_id", report.ID, "citizen_id", report.UserID, "points", report.EcoPoints)

	if report.AssignedTo != nil {
		s.notifier.Send(ctx, notify.Notice{
			UserID:   *report.AssignedTo,
			Title:    "Task approved",
			Message:  fmt.Sprintf("Your work on report #%d was approved. You are available for new tasks.", report.ID),
			Type:     model.NotifTypeTaskApproved,
			ReportID: &rid,
		})
		if w, err := s.profiles.GetByID(*report.AssignedTo); err == nil && w != nil {
			s.broadcastWorker(w, "updated")
		}
	}
	s.notifier.Send(ctx, notify.Notice{
		UserID:   report.UserID,
		Title:    "Eco-points earned",
		Message:  fmt.Sprintf("Report #%d was resolved. You earned %d eco-points.", report.ID, report.EcoPoints),
		Type:     model.NotifTypePointsEarned,
		ReportID: &rid,
	})
	s.broadcastReport(report, "approved")
	return s.reports.GetByID(report.ID)
}

// Reject sends a report awaiting approval back to its worker with the
// proof cleared. The worker keeps the task.
func (s *Service) Reject(ctx context.Context, reportID int64, reason string) (*model.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	report, err := s.getReport(reportID)
	if err != nil {
		return nil, err
	}
	ok, err := s.reports.Reject(report.ID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	if report.AssignedTo != nil {
		rid := report.ID
		s.notifier.Send(ctx, notify.Notice{
			UserID:   *report.AssignedTo,
			Title:    "Proof rejected",
			Message:  fmt.Sprintf("Proof for report #%d was rejected: %s", report.ID, reason),
			Type:     model.NotifTypeTaskRejected,
			ReportID: &rid,
		})
	}
	s.broadcastReport(report, "rejected")
	return s.reports.GetByID(report.ID)
}

// SetStatus lets a subworker go available or offline. Busy is managed by
// assignment, and a worker holding a task cannot change status.
func (s *Service) SetStatus(ctx context.Context, workerID int64, status model.WorkerStatus) (*model.Profile, error) {
	if status != model.WorkerAvailable && status != model.WorkerOffline {
		return nil, ErrInvalidStatus
	}
	worker, err := s.getWorker(workerID)
	if err != nil {
		return nil, err
	}
	if worker.CurrentTaskID != nil {
		return nil, ErrHoldingTask
	}
	if err := s.profiles.SetWorkerState(worker.ID, status, nil); err != nil {
		return nil, err
	}
	worker.Status = status
	s.broadcastWorker(worker, "updated")
	return s.profiles.GetByID(worker.ID)
}

func (s *Service) broadcastWorker(w *model.Profile, action string) {
	if s.hub == nil {
		return
	}
	ward := w.AssignedWard
	if ward == "" {
		ward = w.Ward
	}
	s.hub.Broadcast(websocket.NewMessage(websocket.EntityProfile, action, w.ID,
		map[string]any{"status": string(w.Status)}).InWard(ward))
}

func (s *Service) broadcastReport(r *model.Report, action string) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(websocket.NewMessage(websocket.EntityReport, action, r.ID, nil).InWard(r.Ward))
}

func locationText(r *model.Report) string {
	if r.Address != "" {
		return r.Address
	}
	return fmt.Sprintf("%.5f, %.5f", r.Lat, r.Lng)
}

func assignOutcome(err error) string {
	var inel *IneligibleError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &inel):
		return "ineligible"
	case errors.Is(err, ErrAlreadyAssigned):
		return "conflict"
	case errors.Is(err, ErrReportNotFound), errors.Is(err, ErrWorkerNotFound):
		return "not_found"
	default:
		return "error"
	}
}
