package store

import (
	"testing"

	"github.com/dukerupert/niramay/internal/model"
)

func TestNotificationLifecycle(t *testing.T) {
	ns := NewNotificationStore(setupTestDB(t))

	report := int64(9)
	n, err := ns.Create(1, "Task assigned", "Report #9 is yours", model.NotifTypeTaskAssigned, &report)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.IsRead {
		t.Error("expected new notification to be unread")
	}
	if n.RelatedReportID == nil || *n.RelatedReportID != 9 {
		t.Errorf("related_report_id = %v, want 9", n.RelatedReportID)
	}
	ns.Create(1, "Points earned", "+20", model.NotifTypePointsEarned, nil)
	ns.Create(2, "Other user", "", model.NotifTypeRedemption, nil)

	unread, _ := ns.ListByUser(1, true)
	if len(unread) != 2 {
		t.Fatalf("unread = %d, want 2", len(unread))
	}

	// Another user's notification cannot be marked.
	ok, err := ns.MarkRead(n.ID, 2)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if ok {
		t.Error("expected mark read by another user to be refused")
	}

	ok, _ = ns.MarkRead(n.ID, 1)
	if !ok {
		t.Error("expected mark read by owner to succeed")
	}
	unread, _ = ns.ListByUser(1, true)
	if len(unread) != 1 {
		t.Errorf("unread after mark = %d, want 1", len(unread))
	}

	count, err := ns.MarkAllRead(1)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 1 {
		t.Errorf("marked = %d, want 1", count)
	}
	all, _ := ns.ListByUser(1, false)
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}

func TestNotificationClearReportReference(t *testing.T) {
	ns := NewNotificationStore(setupTestDB(t))

	report := int64(3)
	n, _ := ns.Create(1, "Task assigned", "", model.NotifTypeTaskAssigned, &report)
	if err := ns.ClearReportReference(n.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	list, _ := ns.ListByUser(1, false)
	if list[0].RelatedReportID != nil {
		t.Errorf("related_report_id = %v, want nil", list[0].RelatedReportID)
	}
}
