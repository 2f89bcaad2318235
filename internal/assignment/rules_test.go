package assignment

import (
	"errors"
	"testing"

	"github.com/dukerupert/niramay/internal/model"
)

func TestValidateAssignment(t *testing.T) {
	task := int64(3)

	tests := []struct {
		name   string
		worker model.Profile
		ward   string
		reason string // empty means eligible
	}{
		{"available", model.Profile{Status: model.WorkerAvailable}, "Ward 12", ""},
		{"busy", model.Profile{Status: model.WorkerBusy}, "", "currently busy"},
		{"offline", model.Profile{Status: model.WorkerOffline}, "", "currently offline"},
		{"no status", model.Profile{}, "", "currently unavailable"},
		{"holding task", model.Profile{Status: model.WorkerAvailable, CurrentTaskID: &task}, "", ReasonActiveTask},
		{"ward matches ward", model.Profile{Status: model.WorkerAvailable, Ward: "Ward 12 Indiranagar", AssignedWard: "Ward 7"}, "ward 12", ""},
		{"ward matches assigned ward", model.Profile{Status: model.WorkerAvailable, Ward: "Ward 7", AssignedWard: "WARD 12"}, "Ward 12", ""},
		{"ward mismatch", model.Profile{Status: model.WorkerAvailable, Ward: "Ward 7", AssignedWard: "Ward 8"}, "Ward 12", ReasonWrongWard},
		{"only ward set skips rule", model.Profile{Status: model.WorkerAvailable, Ward: "Ward 7"}, "Ward 12", ""},
		{"no report ward skips rule", model.Profile{Status: model.WorkerAvailable, Ward: "Ward 7", AssignedWard: "Ward 8"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAssignment(tt.worker, tt.ward)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("ValidateAssignment = %v, want eligible", err)
				}
				return
			}
			var inel *IneligibleError
			if !errors.As(err, &inel) {
				t.Fatalf("ValidateAssignment = %v, want *IneligibleError", err)
			}
			if inel.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", inel.Reason, tt.reason)
			}
		})
	}
}
