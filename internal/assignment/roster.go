package assignment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukerupert/niramay/internal/model"
)

type SortMode string

const (
	SortAvailability SortMode = "availability"
	SortName         SortMode = "name"
	SortPerformance  SortMode = "performance"
	SortWard         SortMode = "ward"
)

// ParseSortMode maps a query value to a SortMode. Empty means availability.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortAvailability, nil
	case SortAvailability, SortName, SortPerformance, SortWard:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
}

// Filter keeps the workers matching status (when set) and whose ward,
// assigned ward, name or phone contains search, ignoring case.
func Filter(workers []model.WorkerSummary, status model.WorkerStatus, search string) []model.WorkerSummary {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]model.WorkerSummary, 0, len(workers))
	for _, w := range workers {
		if status != "" && w.Status != status {
			continue
		}
		if term != "" && !matchesSearch(w, term) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func matchesSearch(w model.WorkerSummary, term string) bool {
	for _, field := range []string{w.Ward, w.AssignedWard, w.Name, w.Phone} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

var availabilityRank = map[model.WorkerStatus]int{
	model.WorkerAvailable: 0,
	model.WorkerBusy:      1,
	model.WorkerOffline:   2,
}

func rank(s model.WorkerStatus) int {
	if r, ok := availabilityRank[s]; ok {
		return r
	}
	return len(availabilityRank)
}

func wardKey(w model.WorkerSummary) string {
	if w.AssignedWard != "" {
		return strings.ToLower(w.AssignedWard)
	}
	return strings.ToLower(w.Ward)
}

// Sort orders workers in place. Every mode falls back to name order.
func Sort(workers []model.WorkerSummary, mode SortMode) {
	byName := func(i, j int) bool {
		return strings.ToLower(workers[i].Name) < strings.ToLower(workers[j].Name)
	}

	var less func(i, j int) bool
	switch mode {
	case SortName:
		less = byName
	case SortPerformance:
		less = func(i, j int) bool {
			if workers[i].CompletedTasks != workers[j].CompletedTasks {
				return workers[i].CompletedTasks > workers[j].CompletedTasks
			}
			return byName(i, j)
		}
	case SortWard:
		less = func(i, j int) bool {
			if a, b := wardKey(workers[i]), wardKey(workers[j]); a != b {
				return a < b
			}
			return byName(i, j)
		}
	default:
		less = func(i, j int) bool {
			if a, b := rank(workers[i].Status), rank(workers[j].Status); a != b {
				return a < b
			}
			return byName(i, j)
		}
	}
	sort.SliceStable(workers, less)
}
