package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/niramay/internal/model"
)

type NotificationStore struct {
	db DBTX
}

func NewNotificationStore(db DBTX) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) WithTx(tx *sql.Tx) *NotificationStore {
	return &NotificationStore{db: tx}
}

func scanNotification(sc scanner) (*model.Notification, error) {
	var n model.Notification
	var reportID sql.NullInt64
	var read int

	err := sc.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &reportID, &read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	n.RelatedReportID = int64Ptr(reportID)
	n.IsRead = read != 0
	return &n, nil
}

const notificationCols = `id, user_id, title, message, type, related_report_id, is_read, created_at`

func (s *NotificationStore) Create(userID int64, title, message, notifType string, reportID *int64) (*model.Notification, error) {
	result, err := s.db.Exec(
		`INSERT INTO notifications (user_id, title, message, type, related_report_id) VALUES (?, ?, ?, ?, ?)`,
		userID, title, message, notifType, nullInt64(reportID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	return scanNotification(row)
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(userID int64, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notes []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// MarkRead marks one of the user's notifications read. It reports false if
// the notification does not belong to the user.
func (s *NotificationStore) MarkRead(id, userID int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *NotificationStore) MarkAllRead(userID int64) (int64, error) {
	res, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// ClearReportReference nulls related_report_id on one notification.
func (s *NotificationStore) ClearReportReference(id int64) error {
	_, err := s.db.Exec(`UPDATE notifications SET related_report_id = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear notification report reference: %w", err)
	}
	return nil
}
