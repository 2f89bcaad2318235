package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/niramay/internal/model"
)

type ReportStore struct {
	db DBTX
}

func NewReportStore(db DBTX) *ReportStore {
	return &ReportStore{db: db}
}

func (s *ReportStore) WithTx(tx *sql.Tx) *ReportStore {
	return &ReportStore{db: tx}
}

// ReportFilter narrows List. Zero fields are ignored.
type ReportFilter struct {
	Status     model.ReportStatus
	UserID     int64
	AssignedTo int64
}

func scanReport(sc scanner) (*model.Report, error) {
	var r model.Report
	var images, status, priority string
	var assignedTo sql.NullInt64
	var proofLat, proofLng sql.NullFloat64
	var assignedAt, proofAt, completedAt sql.NullTime

	err := sc.Scan(&r.ID, &r.UserID, &images, &r.Description, &r.Address, &r.Ward, &r.Lat, &r.Lng,
		&status, &priority, &r.EcoPoints, &r.AIAnalysis, &assignedTo, &r.ProofImage, &proofLat, &proofLng,
		&r.RejectionReason, &assignedAt, &proofAt, &completedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if images != "" {
		if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
			return nil, fmt.Errorf("decode report images: %w", err)
		}
	}
	if r.Images == nil {
		r.Images = []string{}
	}
	r.Status = model.ReportStatus(status)
	r.PriorityLevel = model.Priority(priority)
	r.AssignedTo = int64Ptr(assignedTo)
	if proofLat.Valid {
		r.ProofLat = &proofLat.Float64
	}
	if proofLng.Valid {
		r.ProofLng = &proofLng.Float64
	}
	if assignedAt.Valid {
		r.AssignedAt = &assignedAt.Time
	}
	if proofAt.Valid {
		r.ProofSubmittedAt = &proofAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

const reportCols = `id, user_id, images, description, address, ward, lat, lng, status, priority_level, eco_points,
	ai_analysis, assigned_to, proof_image, proof_lat, proof_lng, rejection_reason, assigned_at,
	proof_submitted_at, completed_at, created_at, updated_at`

// Create inserts a new report in the submitted state.
func (s *ReportStore) Create(r model.Report) (*model.Report, error) {
	images, err := json.Marshal(r.Images)
	if err != nil {
		return nil, fmt.Errorf("encode report images: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO reports (user_id, images, description, address, ward, lat, lng, status, priority_level, eco_points, ai_analysis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, string(images), r.Description, r.Address, r.Ward, r.Lat, r.Lng,
		string(model.ReportSubmitted), string(r.PriorityLevel), r.EcoPoints, r.AIAnalysis,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ReportStore) GetByID(id int64) (*model.Report, error) {
	row := s.db.QueryRow(`SELECT `+reportCols+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// List returns reports matching f, newest first.
func (s *ReportStore) List(f ReportFilter) ([]model.Report, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.AssignedTo != 0 {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}

	query := `SELECT ` + reportCols + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// Assign marks an unassigned, submitted report as assigned to workerID.
// It reports false when the report is missing or no longer submitted.
func (s *ReportStore) Assign(id, workerID int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE reports SET assigned_to = ?, status = ?, assigned_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND assigned_to IS NULL`,
		workerID, string(model.ReportAssigned), time.Now().UTC(), id, string(model.ReportSubmitted),
	)
	if err != nil {
		return false, fmt.Errorf("assign report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Unassign returns the report to the submitted state with no assignee.
func (s *ReportStore) Unassign(id int64) error {
	_, err := s.db.Exec(
		`UPDATE reports SET assigned_to = NULL, status = ?, assigned_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(model.ReportSubmitted), id,
	)
	if err != nil {
		return fmt.Errorf("unassign report: %w", err)
	}
	return nil
}

// Transition moves the report to status `to` only if its current status is
// one of `from`. It reports whether the row changed.
func (s *ReportStore) Transition(id int64, to model.ReportStatus, from ...model.ReportStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition report: no source states")
	}
	placeholders := make([]string, len(from))
	args := []any{string(to), id}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	res, err := s.db.Exec(
		`UPDATE reports SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// SubmitProof records proof-of-completion and moves the report to
// submitted_for_approval.
func (s *ReportStore) SubmitProof(id int64, image string, lat, lng float64) error {
	res, err := s.db.Exec(
		`UPDATE reports SET proof_image = ?, proof_lat = ?, proof_lng = ?, proof_submitted_at = ?,
		        status = ?, rejection_reason = '', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		image, lat, lng, time.Now().UTC(), string(model.ReportSubmittedForApproval), id,
	)
	if err != nil {
		return fmt.Errorf("submit proof: %w", err)
	}
	return expectOneRow(res, "submit proof")
}

// Approve marks the report approved. Only reports awaiting approval change.
func (s *ReportStore) Approve(id int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE reports SET status = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(model.ReportApproved), time.Now().UTC(), id, string(model.ReportSubmittedForApproval),
	)
	if err != nil {
		return false, fmt.Errorf("approve report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Reject sends a report awaiting approval back to its assignee with the
// proof cleared.
func (s *ReportStore) Reject(id int64, reason string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE reports SET status = ?, rejection_reason = ?, proof_image = '', proof_lat = NULL, proof_lng = NULL,
		        proof_submitted_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(model.ReportAssigned), reason, id, string(model.ReportSubmittedForApproval),
	)
	if err != nil {
		return false, fmt.Errorf("reject report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
