package model

import "time"

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAdmin     Role = "admin"
	RoleSubworker Role = "subworker"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleAdmin, RoleSubworker:
		return true
	}
	return false
}

type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "available"
	WorkerBusy      WorkerStatus = "busy"
	WorkerOffline   WorkerStatus = "offline"
)

func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerAvailable, WorkerBusy, WorkerOffline:
		return true
	}
	return false
}

// Profile is a person in the system. Status, CurrentTaskID and
// AssignedWard are only meaningful for subworkers.
type Profile struct {
	ID            int64        `json:"id"`
	Role          Role         `json:"role"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone"`
	EcoPoints     int          `json:"eco_points"`
	Status        WorkerStatus `json:"status,omitempty"`
	CurrentTaskID *int64       `json:"current_task_id"`
	Address       string       `json:"address"`
	Ward          string       `json:"ward"`
	AssignedWard  string       `json:"assigned_ward,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// WorkerSummary is a roster row: a subworker profile plus the number of
// tasks they have brought to approval.
type WorkerSummary struct {
	Profile
	CompletedTasks int `json:"completed_tasks"`
}
