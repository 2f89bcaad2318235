// Package assignment decides which subworker may take which report and
// drives a report through assignment, proof and approval.
package assignment

import (
	"fmt"
	"strings"

	"github.com/dukerupert/niramay/internal/model"
)

const (
	ReasonActiveTask = "already has an active task"
	ReasonWrongWard  = "not assigned to this ward"
)

// IneligibleError explains why a worker cannot take a report.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "worker is not eligible: " + e.Reason
}

// ValidateAssignment reports whether worker may be assigned a report in
// reportWard. It returns nil when eligible and an *IneligibleError
// otherwise. An unavailable worker fails with "currently <status>".
//
// The ward rule only applies when reportWard is given and the worker has
// both a ward and an assigned ward; either one containing reportWard,
// ignoring case, is enough.
func ValidateAssignment(worker model.Profile, reportWard string) error {
	if worker.Status != model.WorkerAvailable {
		status := string(worker.Status)
		if !worker.Status.Valid() {
			status = "unavailable"
		}
		return &IneligibleError{Reason: fmt.Sprintf("currently %s", status)}
	}
	if worker.CurrentTaskID != nil {
		return &IneligibleError{Reason: ReasonActiveTask}
	}

	ward := strings.TrimSpace(reportWard)
	if ward != "" && worker.Ward != "" && worker.AssignedWard != "" {
		if !containsFold(worker.Ward, ward) && !containsFold(worker.AssignedWard, ward) {
			return &IneligibleError{Reason: ReasonWrongWard}
		}
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
