package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	profileColumns    = []string{"id", "role", "name", "email", "phone", "eco_points", "status", "current_task_id", "address", "ward", "assigned_ward", "created_at", "updated_at"}
	itemColumns       = []string{"id", "name", "description", "point_cost", "quantity", "is_active", "created_at", "updated_at"}
	redemptionColumns = []string{"id", "user_id", "item_id", "quantity", "total_points_spent", "status", "delivery_address", "created_at"}
)

func q(s string) string { return regexp.QuoteMeta(s) }

// expectRedeemUntilRedemption queues the reads and the redemption insert
// that precede every write-path failure.
func expectRedeemUntilRedemption(mock sqlmock.Sqlmock) {
	now := time.Now()
	mock.ExpectQuery(q("FROM profiles WHERE id = ?")).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(1, "citizen", "Asha", "asha@example.com", "", 200, "", nil, "", "", "", now, now))
	mock.ExpectQuery(q("FROM eco_store_items WHERE id = ?")).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow(2, "Compost Bin", "", 50, 10, 1, now, now))
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO redemptions")).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(q("FROM redemptions WHERE id = ?")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(redemptionColumns).
			AddRow(7, 1, 2, 2, 100, "pending", testAddress, now))
}

func mockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock, *recordingNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	n := &recordingNotifier{}
	return New(db, n, discardLogger()), mock, n
}

func redeemTwo(l *Ledger) (*Order, error) {
	return l.Redeem(context.Background(), RedeemRequest{
		UserID: 1, ItemID: 2, Quantity: 2, DeliveryAddress: testAddress,
	})
}

func TestRedeemPaymentFailedRollsBack(t *testing.T) {
	l, mock, n := mockLedger(t)

	expectRedeemUntilRedemption(mock)
	mock.ExpectExec(q("UPDATE profiles SET eco_points = eco_points - ?")).
		WithArgs(100, int64(1), 100).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	order, err := redeemTwo(l)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Empty(t, n.notices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemDebitRaceIsInsufficientPoints(t *testing.T) {
	l, mock, _ := mockLedger(t)

	expectRedeemUntilRedemption(mock)
	mock.ExpectExec(q("UPDATE profiles SET eco_points = eco_points - ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := redeemTwo(l)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemInventoryUpdateFailedRollsBack(t *testing.T) {
	l, mock, n := mockLedger(t)

	expectRedeemUntilRedemption(mock)
	mock.ExpectExec(q("UPDATE profiles SET eco_points = eco_points - ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE eco_store_items SET quantity = quantity - ?")).
		WithArgs(2, int64(2), 2).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	order, err := redeemTwo(l)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrInventoryUpdateFailed)
	assert.Empty(t, n.notices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemStockRaceIsInsufficientInventory(t *testing.T) {
	l, mock, _ := mockLedger(t)

	expectRedeemUntilRedemption(mock)
	mock.ExpectExec(q("UPDATE profiles SET eco_points = eco_points - ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE eco_store_items SET quantity = quantity - ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := redeemTwo(l)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemLedgerWriteFailedRollsBack(t *testing.T) {
	l, mock, _ := mockLedger(t)

	expectRedeemUntilRedemption(mock)
	mock.ExpectExec(q("UPDATE profiles SET eco_points = eco_points - ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE eco_store_items SET quantity = quantity - ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO reward_transactions")).
		WithArgs(int64(1), nil, -100, "Redeemed 2 x Compost Bin").
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := redeemTwo(l)
	assert.ErrorIs(t, err, ErrLedgerWriteFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemCommitFailure(t *testing.T) {
	l, mock, n := mockLedger(t)
	now := time.Now()

	expectRedeemUntilRedemption(mock)
	mock.ExpectExec(q("UPDATE profiles SET eco_points = eco_points - ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE eco_store_items SET quantity = quantity - ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO reward_transactions")).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectQuery(q("FROM reward_transactions WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "report_id", "points", "reason", "created_at"}).
			AddRow(3, 1, nil, -100, "Redeemed 2 x Compost Bin", now))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	_, err := redeemTwo(l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit redemption")
	assert.Empty(t, n.notices)
	assert.NoError(t, mock.ExpectationsWereMet())
}
