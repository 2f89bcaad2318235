package model

import "time"

type ReportStatus string

const (
	ReportSubmitted            ReportStatus = "submitted"
	ReportAssigned             ReportStatus = "assigned"
	ReportInProgress           ReportStatus = "in-progress"
	ReportSubmittedForApproval ReportStatus = "submitted_for_approval"
	ReportApproved             ReportStatus = "approved"
	ReportRejected             ReportStatus = "rejected"
	ReportCompleted            ReportStatus = "completed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportSubmitted, ReportAssigned, ReportInProgress, ReportSubmittedForApproval,
		ReportApproved, ReportRejected, ReportCompleted:
		return true
	}
	return false
}

// Done reports whether the task behind the report is finished.
func (s ReportStatus) Done() bool {
	return s == ReportApproved || s == ReportCompleted
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityPoints = map[Priority]int{
	PriorityLow:    10,
	PriorityMedium: 20,
	PriorityHigh:   30,
	PriorityUrgent: 40,
}

const (
	MinReportPoints = 10
	MaxReportPoints = 40
)

func (p Priority) Valid() bool {
	_, ok := priorityPoints[p]
	return ok
}

// Points returns the eco-points a report of this priority is worth, or 0
// for an unknown priority.
func (p Priority) Points() int {
	return priorityPoints[p]
}

type Report struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	Images           []string     `json:"images"`
	Description      string       `json:"description"`
	Address          string       `json:"address"`
	Ward             string       `json:"ward"`
	Lat              float64      `json:"lat"`
	Lng              float64      `json:"lng"`
	Status           ReportStatus `json:"status"`
	PriorityLevel    Priority     `json:"priority_level"`
	EcoPoints        int          `json:"eco_points"`
	AIAnalysis       string       `json:"ai_analysis"`
	AssignedTo       *int64       `json:"assigned_to"`
	ProofImage       string       `json:"proof_image,omitempty"`
	ProofLat         *float64     `json:"proof_lat"`
	ProofLng         *float64     `json:"proof_lng"`
	RejectionReason  string       `json:"rejection_reason,omitempty"`
	AssignedAt       *time.Time   `json:"assigned_at"`
	ProofSubmittedAt *time.Time   `json:"proof_submitted_at"`
	CompletedAt      *time.Time   `json:"completed_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}
