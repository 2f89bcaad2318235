package model

import "time"

const (
	NotifTypeReportSubmitted = "report_submitted"
	NotifTypeTaskAssigned    = "task_assigned"
	NotifTypeProofSubmitted  = "proof_submitted"
	NotifTypeTaskApproved    = "task_approved"
	NotifTypeTaskRejected    = "task_rejected"
	NotifTypePointsEarned    = "points_earned"
	NotifTypeRedemption      = "redemption"
)

type Notification struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Type            string    `json:"type"`
	RelatedReportID *int64    `json:"related_report_id"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}
