// Package integrity scans the database for records that break the
// service's cross-table invariants and repairs the safe subset.
package integrity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/niramay/internal/metrics"
	"github.com/dukerupert/niramay/internal/model"
)

type Issue struct {
	Check        string         `json:"check"`
	Severity     model.Severity `json:"severity"`
	Table        string         `json:"table"`
	RecordID     int64          `json:"record_id"`
	Field        string         `json:"field"`
	Problem      string         `json:"problem"`
	SuggestedFix string         `json:"suggested_fix"`
	AutoFixable  bool           `json:"auto_fixable"`
}

type Report struct {
	Issues    []Issue                `json:"issues"`
	Counts    map[model.Severity]int `json:"counts"`
	ScannedAt time.Time              `json:"scanned_at"`
}

// Total returns the number of issues found.
func (r *Report) Total() int {
	return len(r.Issues)
}

// Clean reports whether the scan found nothing.
func (r *Report) Clean() bool {
	return len(r.Issues) == 0
}

type Scanner struct {
	db     *sql.DB
	checks []check
	logger *slog.Logger
	now    func() time.Time
}

func NewScanner(db *sql.DB, logger *slog.Logger) *Scanner {
	return &Scanner{
		db:     db,
		checks: checks(),
		logger: logger,
		now:    time.Now,
	}
}

// Scan runs every check read-only and returns the issues ordered by
// severity, then table, then record.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	rep := &Report{
		Issues:    []Issue{},
		Counts:    make(map[model.Severity]int, len(model.Severities)),
		ScannedAt: s.now().UTC(),
	}
	for _, sev := range model.Severities {
		rep.Counts[sev] = 0
	}

	for _, c := range s.checks {
		issues, err := s.run(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			rep.Counts[is.Severity]++
		}
		rep.Issues = append(rep.Issues, issues...)
	}

	sort.SliceStable(rep.Issues, func(i, j int) bool {
		a, b := rep.Issues[i], rep.Issues[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.RecordID < b.RecordID
	})

	for sev, n := range rep.Counts {
		metrics.IntegrityIssues.WithLabelValues(string(sev)).Set(float64(n))
	}
	s.logger.Info("integrity scan complete",
		"issues", rep.Total(),
		"critical", rep.Counts[model.SeverityCritical],
		"high", rep.Counts[model.SeverityHigh],
	)
	return rep, nil
}

func (s *Scanner) run(ctx context.Context, c check) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, c.query)
	if err != nil {
		return nil, fmt.Errorf("run check %s: %w", c.name, err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var id int64
		var detail sql.NullString
		if err := rows.Scan(&id, &detail); err != nil {
			return nil, fmt.Errorf("scan check %s: %w", c.name, err)
		}
		issues = append(issues, c.issue(id, detail.String))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check %s: %w", c.name, err)
	}
	return issues, nil
}

func (c check) issue(id int64, detail string) Issue {
	problem := c.problem
	if strings.Contains(problem, "%") {
		problem = fmt.Sprintf(problem, detail)
	}
	return Issue{
		Check:        c.name,
		Severity:     c.severity,
		Table:        c.table,
		RecordID:     id,
		Field:        c.field,
		Problem:      problem,
		SuggestedFix: c.fix,
		AutoFixable:  c.autoFix,
	}
}

func (s *Scanner) find(name string) (check, bool) {
	for _, c := range s.checks {
		if c.name == name {
			return c, true
		}
	}
	return check{}, false
}
