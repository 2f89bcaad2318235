package integrity

import (
	"fmt"
	"strings"

	"github.com/dukerupert/niramay/internal/model"
)

// check is one invariant. query returns (id, detail) for each violating
// row. When problem has a verb, detail is formatted into it.
type check struct {
	name     string
	severity model.Severity
	table    string
	field    string
	query    string
	problem  string
	fix      string
	autoFix  bool
}

func quoted(vals ...string) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(out, ", ")
}

var (
	roles           = quoted(string(model.RoleCitizen), string(model.RoleAdmin), string(model.RoleSubworker))
	workerStatuses  = quoted(string(model.WorkerAvailable), string(model.WorkerBusy), string(model.WorkerOffline))
	redemptionStats = quoted(string(model.RedemptionPending), string(model.RedemptionConfirmed),
		string(model.RedemptionShipped), string(model.RedemptionDelivered), string(model.RedemptionCancelled))
	reportStatuses = quoted(string(model.ReportSubmitted), string(model.ReportAssigned), string(model.ReportInProgress),
		string(model.ReportSubmittedForApproval), string(model.ReportApproved), string(model.ReportRejected),
		string(model.ReportCompleted))
	activeReportStatuses = quoted(string(model.ReportAssigned), string(model.ReportInProgress),
		string(model.ReportSubmittedForApproval))
	closedReportStatuses = quoted(string(model.ReportApproved), string(model.ReportCompleted))
	priorities           = quoted(string(model.PriorityLow), string(model.PriorityMedium),
		string(model.PriorityHigh), string(model.PriorityUrgent))
)

// expectedPointsSQL maps priority_level to its fixed eco-points value.
func expectedPointsSQL() string {
	var b strings.Builder
	b.WriteString("CASE priority_level")
	for _, p := range []model.Priority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent} {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Points())
	}
	b.WriteString(" END")
	return b.String()
}

const (
	checkNegativePoints       = "profile_negative_points"
	checkInvalidWorkerStatus  = "profile_invalid_worker_status"
	checkDanglingNotifyReport = "notification_dangling_report"

	subworkerRole = "'" + string(model.RoleSubworker) + "'"
	busyStatus    = "'" + string(model.WorkerBusy) + "'"
)

func checks() []check {
	return []check{
		// profiles
		{
			name: "profile_orphan", severity: model.SeverityCritical, table: "profiles", field: "id",
			query:   `SELECT p.id, '' FROM profiles p WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = p.id)`,
			problem: "profile has no user account",
			fix:     "Delete the profile or restore the user account",
		},
		{
			name: "profile_invalid_role", severity: model.SeverityCritical, table: "profiles", field: "role",
			query:   `SELECT id, role FROM profiles WHERE role NOT IN (` + roles + `)`,
			problem: "role %q is not valid",
			fix:     "Set role to citizen, admin or subworker",
		},
		{
			name: "profile_duplicate_email", severity: model.SeverityHigh, table: "profiles", field: "email",
			query: `SELECT p.id, p.email FROM profiles p WHERE p.email <> ''
			          AND EXISTS (SELECT 1 FROM profiles o WHERE lower(o.email) = lower(p.email) AND o.id <> p.id)`,
			problem: "email %s is shared with another profile",
			fix:     "Merge the duplicate accounts or correct one of the emails",
		},
		{
			name: "profile_duplicate_phone", severity: model.SeverityMedium, table: "profiles", field: "phone",
			query: `SELECT p.id, p.phone FROM profiles p WHERE p.phone <> ''
			          AND EXISTS (SELECT 1 FROM profiles o WHERE o.phone = p.phone AND o.id <> p.id)`,
			problem: "phone %s is shared with another profile",
			fix:     "Contact the users and correct one of the phone numbers",
		},
		{
			name: checkNegativePoints, severity: model.SeverityHigh, table: "profiles", field: "eco_points",
			query:   `SELECT id, CAST(eco_points AS TEXT) FROM profiles WHERE eco_points < 0`,
			problem: "eco_points is negative (%s)",
			fix:     "Clamp eco_points to 0",
			autoFix: true,
		},
		{
			name: checkInvalidWorkerStatus, severity: model.SeverityMedium, table: "profiles", field: "status",
			query: `SELECT id, status FROM profiles
			         WHERE role = ` + subworkerRole + ` AND status NOT IN (` + workerStatuses + `)`,
			problem: "subworker status %q is not valid",
			fix:     "Reset status to available",
			autoFix: true,
		},
		{
			name: "profile_busy_without_task", severity: model.SeverityHigh, table: "profiles", field: "current_task_id",
			query: `SELECT id, '' FROM profiles
			         WHERE role = ` + subworkerRole + ` AND status = ` + busyStatus + ` AND current_task_id IS NULL`,
			problem: "worker is busy but has no current task",
			fix:     "Set the worker available, or assign the report they are working on",
		},
		{
			name: "profile_task_without_busy", severity: model.SeverityHigh, table: "profiles", field: "status",
			query: `SELECT id, CAST(current_task_id AS TEXT) FROM profiles
			         WHERE current_task_id IS NOT NULL AND status <> ` + busyStatus,
			problem: "worker holds report %s but is not busy",
			fix:     "Set the worker busy, or clear the current task and unassign the report",
		},
		{
			name: "profile_dangling_task", severity: model.SeverityHigh, table: "profiles", field: "current_task_id",
			query: `SELECT p.id, CAST(p.current_task_id AS TEXT) FROM profiles p
			         WHERE p.current_task_id IS NOT NULL
			           AND NOT EXISTS (SELECT 1 FROM reports r WHERE r.id = p.current_task_id)`,
			problem: "current task %s does not exist",
			fix:     "Clear current_task_id and set the worker available",
		},
		{
			name: "profile_closed_task", severity: model.SeverityMedium, table: "profiles", field: "current_task_id",
			query: `SELECT p.id, printf('%d (%s)', r.id, r.status) FROM profiles p
			         JOIN reports r ON r.id = p.current_task_id
			         WHERE r.status IN (` + closedReportStatuses + `)`,
			problem: "current task %s is already closed",
			fix:     "Clear current_task_id and set the worker available",
		},
		{
			name: "profile_ledger_drift", severity: model.SeverityHigh, table: "profiles", field: "eco_points",
			query: `SELECT p.id, printf('balance %d, ledger sum %d', p.eco_points, COALESCE(SUM(t.points), 0))
			         FROM profiles p LEFT JOIN reward_transactions t ON t.user_id = p.id
			         GROUP BY p.id, p.eco_points
			         HAVING p.eco_points <> COALESCE(SUM(t.points), 0)`,
			problem: "eco_points does not match the ledger: %s",
			fix:     "Investigate the history and record a ledgered adjustment",
		},

		// reports
		{
			name: "report_orphan_owner", severity: model.SeverityHigh, table: "reports", field: "user_id",
			query: `SELECT r.id, CAST(r.user_id AS TEXT) FROM reports r
			         WHERE NOT EXISTS (SELECT 1 FROM profiles p WHERE p.id = r.user_id)`,
			problem: "owner %s does not exist",
			fix:     "Reattach the report to its citizen or archive it",
		},
		{
			name: "report_dangling_assignee", severity: model.SeverityHigh, table: "reports", field: "assigned_to",
			query: `SELECT r.id, CAST(r.assigned_to AS TEXT) FROM reports r
			         WHERE r.assigned_to IS NOT NULL
			           AND NOT EXISTS (SELECT 1 FROM profiles p WHERE p.id = r.assigned_to)`,
			problem: "assignee %s does not exist",
			fix:     "Unassign the report and assign an active worker",
		},
		{
			name: "report_assignee_not_worker", severity: model.SeverityHigh, table: "reports", field: "assigned_to",
			query: `SELECT r.id, printf('%d (%s)', p.id, p.role) FROM reports r
			         JOIN profiles p ON p.id = r.assigned_to
			         WHERE p.role <> ` + subworkerRole,
			problem: "assignee %s is not a subworker",
			fix:     "Reassign the report to a subworker",
		},
		{
			name: "report_missing_assignee", severity: model.SeverityHigh, table: "reports", field: "assigned_to",
			query: `SELECT id, status FROM reports
			         WHERE status IN (` + activeReportStatuses + `) AND assigned_to IS NULL`,
			problem: "report is %s but has no assignee",
			fix:     "Assign a worker or return the report to submitted",
		},
		{
			name: "report_worker_not_holding", severity: model.SeverityHigh, table: "reports", field: "assigned_to",
			query: `SELECT r.id, printf('%s, worker %d', r.status, r.assigned_to) FROM reports r
			         WHERE r.status IN (` + activeReportStatuses + `) AND r.assigned_to IS NOT NULL
			           AND EXISTS (SELECT 1 FROM profiles p WHERE p.id = r.assigned_to)
			           AND NOT EXISTS (SELECT 1 FROM profiles p
			                            WHERE p.id = r.assigned_to AND p.current_task_id = r.id AND p.status = ` + busyStatus + `)`,
			problem: "report is %s but the worker is not busy on it",
			fix:     "Set the worker busy on this report or unassign it",
		},
		{
			name: "report_invalid_coordinates", severity: model.SeverityHigh, table: "reports", field: "lat,lng",
			query: `SELECT id, printf('%.6f, %.6f', lat, lng) FROM reports
			         WHERE lat < -90 OR lat > 90 OR lng < -180 OR lng > 180`,
			problem: "coordinates %s are out of range",
			fix:     "Correct the location from the report address",
		},
		{
			name: "report_invalid_status", severity: model.SeverityCritical, table: "reports", field: "status",
			query:   `SELECT id, status FROM reports WHERE status NOT IN (` + reportStatuses + `)`,
			problem: "status %q is not valid",
			fix:     "Set the status from the report's history",
		},
		{
			name: "report_invalid_priority", severity: model.SeverityMedium, table: "reports", field: "priority_level",
			query:   `SELECT id, priority_level FROM reports WHERE priority_level NOT IN (` + priorities + `)`,
			problem: "priority %q is not valid",
			fix:     "Set priority to low, medium, high or urgent",
		},
		{
			name: "report_points_mismatch", severity: model.SeverityMedium, table: "reports", field: "eco_points",
			query: `SELECT id, printf('%s expects %d, found %d', priority_level, ` + expectedPointsSQL() + `, eco_points)
			         FROM reports
			         WHERE priority_level IN (` + priorities + `) AND eco_points <> ` + expectedPointsSQL(),
			problem: "eco_points does not match priority: %s",
			fix:     "Set eco_points from the priority mapping",
		},
		{
			name: "report_no_images", severity: model.SeverityMedium, table: "reports", field: "images",
			query:   `SELECT id, '' FROM reports WHERE images IN ('', '[]', 'null')`,
			problem: "report has no images",
			fix:     "Ask the citizen to re-upload a photo or archive the report",
		},

		// eco_store_items
		{
			name: "item_duplicate_name", severity: model.SeverityLow, table: "eco_store_items", field: "name",
			query: `SELECT i.id, i.name FROM eco_store_items i
			         WHERE EXISTS (SELECT 1 FROM eco_store_items o WHERE lower(o.name) = lower(i.name) AND o.id <> i.id)`,
			problem: "name %q is used by another item",
			fix:     "Rename or merge the duplicate items",
		},
		{
			name: "item_invalid_cost", severity: model.SeverityHigh, table: "eco_store_items", field: "point_cost",
			query:   `SELECT id, CAST(point_cost AS TEXT) FROM eco_store_items WHERE point_cost <= 0`,
			problem: "point_cost %s must be positive",
			fix:     "Set a positive point cost or deactivate the item",
		},
		{
			name: "item_negative_stock", severity: model.SeverityHigh, table: "eco_store_items", field: "quantity",
			query:   `SELECT id, CAST(quantity AS TEXT) FROM eco_store_items WHERE quantity < 0`,
			problem: "stock %s is negative",
			fix:     "Recount stock and set the correct quantity",
		},

		// redemptions
		{
			name: "redemption_orphan_user", severity: model.SeverityHigh, table: "redemptions", field: "user_id",
			query: `SELECT r.id, CAST(r.user_id AS TEXT) FROM redemptions r
			         WHERE NOT EXISTS (SELECT 1 FROM profiles p WHERE p.id = r.user_id)`,
			problem: "user %s does not exist",
			fix:     "Cancel the order",
		},
		{
			name: "redemption_orphan_item", severity: model.SeverityMedium, table: "redemptions", field: "item_id",
			query: `SELECT r.id, CAST(r.item_id AS TEXT) FROM redemptions r
			         WHERE NOT EXISTS (SELECT 1 FROM eco_store_items i WHERE i.id = r.item_id)`,
			problem: "item %s does not exist",
			fix:     "Restore the item record or cancel the order",
		},
		{
			name: "redemption_invalid_quantity", severity: model.SeverityHigh, table: "redemptions", field: "quantity",
			query:   `SELECT id, CAST(quantity AS TEXT) FROM redemptions WHERE quantity <= 0`,
			problem: "quantity %s must be positive",
			fix:     "Cancel the order",
		},
		{
			name: "redemption_total_mismatch", severity: model.SeverityMedium, table: "redemptions", field: "total_points_spent",
			query: `SELECT r.id, printf('%d x %d = %d, recorded %d', r.quantity, i.point_cost, r.quantity * i.point_cost, r.total_points_spent)
			         FROM redemptions r JOIN eco_store_items i ON i.id = r.item_id
			         WHERE r.total_points_spent <> r.quantity * i.point_cost`,
			problem: "total does not match item cost: %s",
			fix:     "Check whether the item price changed after the order",
		},
		{
			name: "redemption_invalid_status", severity: model.SeverityMedium, table: "redemptions", field: "status",
			query:   `SELECT id, status FROM redemptions WHERE status NOT IN (` + redemptionStats + `)`,
			problem: "status %q is not valid",
			fix:     "Set status to pending, confirmed, shipped, delivered or cancelled",
		},

		// reward_transactions
		{
			name: "transaction_orphan_user", severity: model.SeverityMedium, table: "reward_transactions", field: "user_id",
			query: `SELECT t.id, CAST(t.user_id AS TEXT) FROM reward_transactions t
			         WHERE NOT EXISTS (SELECT 1 FROM profiles p WHERE p.id = t.user_id)`,
			problem: "user %s does not exist",
			fix:     "Archive the ledger entry",
		},
		{
			name: "transaction_dangling_report", severity: model.SeverityLow, table: "reward_transactions", field: "report_id",
			query: `SELECT t.id, CAST(t.report_id AS TEXT) FROM reward_transactions t
			         WHERE t.report_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM reports r WHERE r.id = t.report_id)`,
			problem: "report %s does not exist",
			fix:     "Keep the entry; note the missing report in its reason",
		},

		// notifications
		{
			name: "notification_orphan_user", severity: model.SeverityLow, table: "notifications", field: "user_id",
			query: `SELECT n.id, CAST(n.user_id AS TEXT) FROM notifications n
			         WHERE NOT EXISTS (SELECT 1 FROM profiles p WHERE p.id = n.user_id)`,
			problem: "user %s does not exist",
			fix:     "Delete the notification",
		},
		{
			name: checkDanglingNotifyReport, severity: model.SeverityLow, table: "notifications", field: "related_report_id",
			query: `SELECT n.id, CAST(n.related_report_id AS TEXT) FROM notifications n
			         WHERE n.related_report_id IS NOT NULL
			           AND NOT EXISTS (SELECT 1 FROM reports r WHERE r.id = n.related_report_id)`,
			problem: "related report %s does not exist",
			fix:     "Clear related_report_id",
			autoFix: true,
		},
	}
}
