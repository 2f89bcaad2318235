package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/niramay/internal/model"
)

type ProfileStore struct {
	db DBTX
}

func NewProfileStore(db DBTX) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) WithTx(tx *sql.Tx) *ProfileStore {
	return &ProfileStore{db: tx}
}

func scanProfile(sc scanner) (*model.Profile, error) {
	var p model.Profile
	var role, status string
	var taskID sql.NullInt64

	err := sc.Scan(&p.ID, &role, &p.Name, &p.Email, &p.Phone, &p.EcoPoints, &status, &taskID,
		&p.Address, &p.Ward, &p.AssignedWard, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Role = model.Role(role)
	p.Status = model.WorkerStatus(status)
	p.CurrentTaskID = int64Ptr(taskID)
	return &p, nil
}

const profileCols = `id, role, name, email, phone, eco_points, status, current_task_id, address, ward, assigned_ward, created_at, updated_at`

// Create inserts a profile whose ID is the owning user's ID. Subworkers
// start out available.
func (s *ProfileStore) Create(p model.Profile) (*model.Profile, error) {
	if p.Role == "" {
		p.Role = model.RoleCitizen
	}
	if p.Role == model.RoleSubworker && p.Status == "" {
		p.Status = model.WorkerAvailable
	}

	_, err := s.db.Exec(
		`INSERT INTO profiles (id, role, name, email, phone, eco_points, status, address, ward, assigned_ward)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Role), p.Name, p.Email, p.Phone, p.EcoPoints, string(p.Status), p.Address, p.Ward, p.AssignedWard,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return s.GetByID(p.ID)
}

func (s *ProfileStore) GetByID(id int64) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListWorkers returns every subworker with the number of reports they
// have brought to approved or completed.
func (s *ProfileStore) ListWorkers() ([]model.WorkerSummary, error) {
	rows, err := s.db.Query(
		`SELECT p.id, p.role, p.name, p.email, p.phone, p.eco_points, p.status, p.current_task_id,
		        p.address, p.ward, p.assigned_ward, p.created_at, p.updated_at,
		        (SELECT COUNT(*) FROM reports r
		          WHERE r.assigned_to = p.id AND r.status IN (?, ?)) AS completed
		 FROM profiles p WHERE p.role = ? ORDER BY p.name ASC`,
		string(model.ReportApproved), string(model.ReportCompleted), string(model.RoleSubworker),
	)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []model.WorkerSummary
	for rows.Next() {
		var w model.WorkerSummary
		var role, status string
		var taskID sql.NullInt64
		if err := rows.Scan(&w.ID, &role, &w.Name, &w.Email, &w.Phone, &w.EcoPoints, &status, &taskID,
			&w.Address, &w.Ward, &w.AssignedWard, &w.CreatedAt, &w.UpdatedAt, &w.CompletedTasks); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Role = model.Role(role)
		w.Status = model.WorkerStatus(status)
		w.CurrentTaskID = int64Ptr(taskID)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// SetWorkerState sets a subworker's status and current task together.
func (s *ProfileStore) SetWorkerState(id int64, status model.WorkerStatus, currentTaskID *int64) error {
	res, err := s.db.Exec(
		`UPDATE profiles SET status = ?, current_task_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), nullInt64(currentTaskID), id,
	)
	if err != nil {
		return fmt.Errorf("set worker state: %w", err)
	}
	return expectOneRow(res, "set worker state")
}

// ClaimWorker marks an available subworker with no task as busy on
// taskID. It reports false when the worker was not free.
func (s *ProfileStore) ClaimWorker(id, taskID int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE profiles SET status = ?, current_task_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND role = ? AND status = ? AND current_task_id IS NULL`,
		string(model.WorkerBusy), taskID, id, string(model.RoleSubworker), string(model.WorkerAvailable),
	)
	if err != nil {
		return false, fmt.Errorf("claim worker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseWorker makes the worker available again if taskID is still
// their current task. It reports whether the worker was released.
func (s *ProfileStore) ReleaseWorker(id, taskID int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE profiles SET status = ?, current_task_id = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND current_task_id = ?`,
		string(model.WorkerAvailable), id, taskID,
	)
	if err != nil {
		return false, fmt.Errorf("release worker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// SetStatus changes only the status column.
func (s *ProfileStore) SetStatus(id int64, status model.WorkerStatus) error {
	_, err := s.db.Exec(
		`UPDATE profiles SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("set profile status: %w", err)
	}
	return nil
}

// DebitPoints subtracts amount from the balance only if the balance
// covers it. It reports false when the balance was insufficient (or the
// profile does not exist) and nothing was changed.
func (s *ProfileStore) DebitPoints(id int64, amount int) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE profiles SET eco_points = eco_points - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND eco_points >= ?`,
		amount, id, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ProfileStore) CreditPoints(id int64, amount int) error {
	res, err := s.db.Exec(
		`UPDATE profiles SET eco_points = eco_points + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("credit points: %w", err)
	}
	return expectOneRow(res, "credit points")
}

// ListAdminIDs returns the IDs of every admin, used for broadcast notifications.
func (s *ProfileStore) ListAdminIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM profiles WHERE role = ? ORDER BY id`, string(model.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("list admin ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, ErrNoRows)
	}
	return nil
}
