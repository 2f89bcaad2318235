package assignment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	reportColumns = []string{"id", "user_id", "images", "description", "address", "ward", "lat", "lng", "status",
		"priority_level", "eco_points", "ai_analysis", "assigned_to", "proof_image", "proof_lat", "proof_lng",
		"rejection_reason", "assigned_at", "proof_submitted_at", "completed_at", "created_at", "updated_at"}
	profileColumns = []string{"id", "role", "name", "email", "phone", "eco_points", "status", "current_task_id",
		"address", "ward", "assigned_ward", "created_at", "updated_at"}
)

// A failing worker update must roll back the report update made earlier
// in the same transaction.
func TestAssignWorkerUpdateFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM reports WHERE id = ?")).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(reportColumns).AddRow(
			1, 10, `["reports/a.jpg"]`, "", "", "Ward 12", 12.9716, 77.5946, "submitted",
			"medium", 20, "", nil, "", nil, nil, "", nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = ?")).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(
			2, "subworker", "Ravi", "ravi@example.com", "", 0, "available", nil, "", "Ward 12", "", now, now))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reports SET assigned_to = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET status = ?, current_task_id = ?")).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	n := &fakeNotifier{}
	h := &fakeHub{}
	svc := NewService(db, n, h, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r, err := svc.Assign(context.Background(), 1, 2)
	assert.Nil(t, r)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "claim worker")
	assert.Empty(t, n.notices)
	assert.Empty(t, h.messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}
