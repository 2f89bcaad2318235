package integrity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/niramay/internal/ledger"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

const clampReason = "Negative balance cleared by integrity fix"

// Fix records one repair applied by AutoFix.
type Fix struct {
	Check    string `json:"check"`
	Table    string `json:"table"`
	RecordID int64  `json:"record_id"`
	Field    string `json:"field"`
	Before   string `json:"before"`
	After    string `json:"after"`
}

// AutoFix repairs the issues marked auto-fixable, all in one
// transaction. Negative balances are cleared with a ledger credit so
// eco_points stays equal to the ledger sum. Everything else is left for
// an operator.
func (s *Scanner) AutoFix(ctx context.Context) ([]Fix, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fix: %w", err)
	}
	defer tx.Rollback()

	profiles := store.NewProfileStore(tx)
	rewards := store.NewRewardStore(tx)
	notifications := store.NewNotificationStore(tx)

	var fixes []Fix

	negative, err := s.collect(ctx, tx, checkNegativePoints)
	if err != nil {
		return nil, err
	}
	for _, is := range negative {
		p, err := profiles.GetByID(is.id)
		if err != nil {
			return nil, fmt.Errorf("load profile %d: %w", is.id, err)
		}
		if p == nil || p.EcoPoints >= 0 {
			continue
		}
		if _, err := ledger.Apply(profiles, rewards, p.ID, nil, -p.EcoPoints, clampReason); err != nil {
			return nil, fmt.Errorf("clamp points for profile %d: %w", p.ID, err)
		}
		fixes = append(fixes, Fix{
			Check: checkNegativePoints, Table: "profiles", RecordID: p.ID, Field: "eco_points",
			Before: fmt.Sprint(p.EcoPoints), After: "0",
		})
	}

	statuses, err := s.collect(ctx, tx, checkInvalidWorkerStatus)
	if err != nil {
		return nil, err
	}
	for _, is := range statuses {
		if err := profiles.SetStatus(is.id, model.WorkerAvailable); err != nil {
			return nil, err
		}
		fixes = append(fixes, Fix{
			Check: checkInvalidWorkerStatus, Table: "profiles", RecordID: is.id, Field: "status",
			Before: is.detail, After: string(model.WorkerAvailable),
		})
	}

	refs, err := s.collect(ctx, tx, checkDanglingNotifyReport)
	if err != nil {
		return nil, err
	}
	for _, is := range refs {
		if err := notifications.ClearReportReference(is.id); err != nil {
			return nil, err
		}
		fixes = append(fixes, Fix{
			Check: checkDanglingNotifyReport, Table: "notifications", RecordID: is.id, Field: "related_report_id",
			Before: is.detail, After: "NULL",
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit fix: %w", err)
	}

	s.logger.Info("integrity auto-fix applied", "fixes", len(fixes))
	return fixes, nil
}

type hit struct {
	id     int64
	detail string
}

// collect drains a check's rows before any update runs on the same
// connection.
func (s *Scanner) collect(ctx context.Context, tx *sql.Tx, name string) ([]hit, error) {
	c, ok := s.find(name)
	if !ok {
		return nil, fmt.Errorf("unknown check %s", name)
	}
	rows, err := tx.QueryContext(ctx, c.query)
	if err != nil {
		return nil, fmt.Errorf("run check %s: %w", name, err)
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var h hit
		var detail sql.NullString
		if err := rows.Scan(&h.id, &detail); err != nil {
			return nil, fmt.Errorf("scan check %s: %w", name, err)
		}
		h.detail = detail.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
