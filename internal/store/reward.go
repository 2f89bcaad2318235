package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/niramay/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

func (s *RewardStore) WithTx(tx *sql.Tx) *RewardStore {
	return &RewardStore{db: tx}
}

// --- Redemption methods ---

func scanRedemption(sc scanner) (*model.Redemption, error) {
	var r model.Redemption
	var status string

	err := sc.Scan(&r.ID, &r.UserID, &r.ItemID, &r.Quantity, &r.TotalPointsSpent, &status, &r.DeliveryAddress, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = model.RedemptionStatus(status)
	return &r, nil
}

const redemptionCols = `id, user_id, item_id, quantity, total_points_spent, status, delivery_address, created_at`

// CreateRedemption records a pending order.
func (s *RewardStore) CreateRedemption(userID, itemID int64, quantity, totalPoints int, address string) (*model.Redemption, error) {
	result, err := s.db.Exec(
		`INSERT INTO redemptions (user_id, item_id, quantity, total_points_spent, status, delivery_address)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, itemID, quantity, totalPoints, string(model.RedemptionPending), address,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+redemptionCols+` FROM redemptions WHERE id = ?`, id)
	return scanRedemption(row)
}

func (s *RewardStore) ListRedemptionsByUser(userID int64) ([]model.Redemption, error) {
	return s.listRedemptions(
		`SELECT `+redemptionCols+` FROM redemptions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

func (s *RewardStore) ListRedemptions() ([]model.Redemption, error) {
	return s.listRedemptions(`SELECT ` + redemptionCols + ` FROM redemptions ORDER BY created_at DESC, id DESC`)
}

func (s *RewardStore) listRedemptions(query string, args ...any) ([]model.Redemption, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

// --- Ledger methods ---

func scanTransaction(sc scanner) (*model.RewardTransaction, error) {
	var t model.RewardTransaction
	var reportID sql.NullInt64

	err := sc.Scan(&t.ID, &t.UserID, &reportID, &t.Points, &t.Reason, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.ReportID = int64Ptr(reportID)
	return &t, nil
}

const transactionCols = `id, user_id, report_id, points, reason, created_at`

// RecordTransaction appends a ledger entry. Points are signed.
func (s *RewardStore) RecordTransaction(userID int64, reportID *int64, points int, reason string) (*model.RewardTransaction, error) {
	result, err := s.db.Exec(
		`INSERT INTO reward_transactions (user_id, report_id, points, reason) VALUES (?, ?, ?, ?)`,
		userID, nullInt64(reportID), points, reason,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+transactionCols+` FROM reward_transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *RewardStore) ListTransactionsByUser(userID int64) ([]model.RewardTransaction, error) {
	rows, err := s.db.Query(
		`SELECT `+transactionCols+` FROM reward_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reward transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.RewardTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// GetPointBalance returns the profile balance together with the ledger
// totals for a user.
func (s *RewardStore) GetPointBalance(userID int64) (*model.PointBalance, error) {
	var balance int
	err := s.db.QueryRow(`SELECT eco_points FROM profiles WHERE id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	var earned, spent int
	err = s.db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN points > 0 THEN points END), 0),
		        COALESCE(-SUM(CASE WHEN points < 0 THEN points END), 0)
		 FROM reward_transactions WHERE user_id = ?`,
		userID,
	).Scan(&earned, &spent)
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}

	txs, err := s.ListTransactionsByUser(userID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []model.RewardTransaction{}
	}

	return &model.PointBalance{
		UserID:       userID,
		Balance:      balance,
		TotalEarned:  earned,
		TotalSpent:   spent,
		Transactions: txs,
	}, nil
}
