package assignment

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/niramay/internal/database"
	"github.com/dukerupert/niramay/internal/geo"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/notify"
	"github.com/dukerupert/niramay/internal/store"
	"github.com/dukerupert/niramay/internal/websocket"
)

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	admin   []notify.Notice
}

func (f *fakeNotifier) Send(_ context.Context, n notify.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
}

func (f *fakeNotifier) SendToAdmins(_ context.Context, n notify.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admin = append(f.admin, n)
}

func (f *fakeNotifier) types() []string {
	var out []string
	for _, n := range f.notices {
		out = append(out, n.Type)
	}
	return out
}

type fakeHub struct {
	messages []websocket.Message
}

func (h *fakeHub) Broadcast(msg websocket.Message) {
	h.messages = append(h.messages, msg)
}

var reportSite = geo.Point{Lat: 12.9716, Lng: 77.5946}

type env struct {
	db       *sql.DB
	svc      *Service
	notifier *fakeNotifier
	hub      *fakeHub
	citizen  *model.Profile
	worker   *model.Profile
	report   *model.Report
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{db: db, notifier: &fakeNotifier{}, hub: &fakeHub{}}
	e.svc = NewService(db, e.notifier, e.hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.citizen = e.profile(t, model.Profile{Email: "asha@example.com", Name: "Asha", EcoPoints: 5})
	e.worker = e.profile(t, model.Profile{
		Email: "ravi@example.com", Name: "Ravi", Role: model.RoleSubworker, Ward: "Ward 12", AssignedWard: "Indiranagar",
	})
	e.report, err = store.NewReportStore(db).Create(model.Report{
		UserID: e.citizen.ID, Images: []string{"reports/a.jpg"}, Ward: "Ward 12",
		Lat: reportSite.Lat, Lng: reportSite.Lng, PriorityLevel: model.PriorityMedium, EcoPoints: 20,
	})
	require.NoError(t, err)
	return e
}

func (e *env) profile(t *testing.T, p model.Profile) *model.Profile {
	t.Helper()
	u, err := store.NewUserStore(e.db).Create(p.Email, "hash", model.SignupMetadata{})
	require.NoError(t, err)
	p.ID = u.ID
	created, err := store.NewProfileStore(e.db).Create(p)
	require.NoError(t, err)
	return created
}

func (e *env) reload(t *testing.T) (*model.Report, *model.Profile, *model.Profile) {
	t.Helper()
	r, err := store.NewReportStore(e.db).GetByID(e.report.ID)
	require.NoError(t, err)
	w, err := store.NewProfileStore(e.db).GetByID(e.worker.ID)
	require.NoError(t, err)
	c, err := store.NewProfileStore(e.db).GetByID(e.citizen.ID)
	require.NoError(t, err)
	return r, w, c
}

func TestAssign(t *testing.T) {
	e := newEnv(t)

	r, err := e.svc.Assign(context.Background(), e.report.ID, e.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportAssigned, r.Status)
	require.NotNil(t, r.AssignedTo)
	assert.Equal(t, e.worker.ID, *r.AssignedTo)
	assert.NotNil(t, r.AssignedAt)

	_, w, _ := e.reload(t)
	assert.Equal(t, model.WorkerBusy, w.Status)
	require.NotNil(t, w.CurrentTaskID)
	assert.Equal(t, e.report.ID, *w.CurrentTaskID)

	assert.Equal(t, []string{model.NotifTypeTaskAssigned, model.NotifTypeTaskAssigned}, e.notifier.types())
	assert.Equal(t, e.worker.ID, e.notifier.notices[0].UserID)
	assert.Equal(t, e.citizen.ID, e.notifier.notices[1].UserID)

	require.Len(t, e.hub.messages, 2)
	assert.Equal(t, websocket.EntityProfile, e.hub.messages[0].Entity)
	assert.Equal(t, "Indiranagar", e.hub.messages[0].Ward)
	assert.Equal(t, "busy", e.hub.messages[0].Extra["status"])
	assert.Equal(t, "report_assigned", e.hub.messages[1].Type)
}

func TestAssignRefused(t *testing.T) {
	t.Run("busy worker", func(t *testing.T) {
		e := newEnv(t)
		require.NoError(t, store.NewProfileStore(e.db).SetStatus(e.worker.ID, model.WorkerBusy))

		_, err := e.svc.Assign(context.Background(), e.report.ID, e.worker.ID)
		var inel *IneligibleError
		require.ErrorAs(t, err, &inel)
		assert.Equal(t, "currently busy", inel.Reason)
	})

	t.Run("wrong ward", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.db.Exec(`UPDATE reports SET ward = 'Ward 40' WHERE id = ?`, e.report.ID)
		require.NoError(t, err)

		_, err = e.svc.Assign(context.Background(), e.report.ID, e.worker.ID)
		var inel *IneligibleError
		require.ErrorAs(t, err, &inel)
		assert.Equal(t, ReasonWrongWard, inel.Reason)
	})

	t.Run("already assigned", func(t *testing.T) {
		e := newEnv(t)
		other := e.profile(t, model.Profile{Email: "meena@example.com", Role: model.RoleSubworker})
		_, err := e.svc.Assign(context.Background(), e.report.ID, other.ID)
		require.NoError(t, err)

		_, err = e.svc.Assign(context.Background(), e.report.ID, e.worker.ID)
		assert.ErrorIs(t, err, ErrAlreadyAssigned)
	})

	t.Run("not a worker", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Assign(context.Background(), e.report.ID, e.citizen.ID)
		assert.ErrorIs(t, err, ErrWorkerNotFound)
	})

	t.Run("missing report", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Assign(context.Background(), 999, e.worker.ID)
		assert.ErrorIs(t, err, ErrReportNotFound)
	})
}

func TestEligibility(t *testing.T) {
	e := newEnv(t)
	assert.NoError(t, e.svc.Eligibility(e.report.ID, e.worker.ID))

	_, err := e.svc.Assign(context.Background(), e.report.ID, e.worker.ID)
	require.NoError(t, err)

	var inel *IneligibleError
	require.ErrorAs(t, e.svc.Eligibility(e.report.ID, e.worker.ID), &inel)
	assert.Equal(t, "currently busy", inel.Reason)
}

func TestProofRejectApprove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Assign(ctx, e.report.ID, e.worker.ID)
	require.NoError(t, err)

	// Only the assignee may start.
	_, err = e.svc.Start(ctx, e.report.ID, e.citizen.ID)
	assert.ErrorIs(t, err, ErrNotAssignee)
	r, err := e.svc.Start(ctx, e.report.ID, e.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportInProgress, r.Status)

	// 0.001 degrees of latitude is about 111 m.
	far := geo.Point{Lat: reportSite.Lat + 0.001, Lng: reportSite.Lng}
	_, err = e.svc.SubmitProof(ctx, e.report.ID, e.worker.ID, "proofs/1.jpg", far)
	var perr *geo.ProofError
	require.ErrorAs(t, err, &perr)
	assert.InDelta(t, 111, perr.Distance, 1)

	near := geo.Point{Lat: reportSite.Lat + 0.0002, Lng: reportSite.Lng}
	r, err = e.svc.SubmitProof(ctx, e.report.ID, e.worker.ID, "proofs/1.jpg", near)
	require.NoError(t, err)
	assert.Equal(t, model.ReportSubmittedForApproval, r.Status)
	assert.Equal(t, "proofs/1.jpg", r.ProofImage)
	require.Len(t, e.notifier.admin, 1)
	assert.Equal(t, model.NotifTypeProofSubmitted, e.notifier.admin[0].Type)

	_, err = e.svc.Reject(ctx, e.report.ID, "  ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	r, err = e.svc.Reject(ctx, e.report.ID, "bin still visible")
	require.NoError(t, err)
	assert.Equal(t, model.ReportAssigned, r.Status)
	assert.Empty(t, r.ProofImage)
	_, w, _ := e.reload(t)
	assert.Equal(t, model.WorkerBusy, w.Status, "rejected work stays with the worker")

	// Approve needs a pending proof.
	_, err = e.svc.Approve(ctx, e.report.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.svc.SubmitProof(ctx, e.report.ID, e.worker.ID, "proofs/2.jpg", near)
	require.NoError(t, err)
	r, err = e.svc.Approve(ctx, e.report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportApproved, r.Status)

	_, w, c := e.reload(t)
	assert.Equal(t, model.WorkerAvailable, w.Status)
	assert.Nil(t, w.CurrentTaskID)
	assert.Equal(t, 25, c.EcoPoints)

	txs, err := store.NewRewardStore(e.db).ListTransactionsByUser(e.citizen.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 20, txs[0].Points)
	require.NotNil(t, txs[0].ReportID)
	assert.Equal(t, e.report.ID, *txs[0].ReportID)

	assert.Contains(t, e.notifier.types(), model.NotifTypeTaskRejected)
	assert.Contains(t, e.notifier.types(), model.NotifTypeTaskApproved)
	assert.Contains(t, e.notifier.types(), model.NotifTypePointsEarned)

	// A second approval is refused and credits nothing.
	_, err = e.svc.Approve(ctx, e.report.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, _, c = e.reload(t)
	assert.Equal(t, 25, c.EcoPoints)
}

func TestCheckProofInvalidCoordinates(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Assign(context.Background(), e.report.ID, e.worker.ID)
	require.NoError(t, err)

	_, err = e.svc.CheckProof(e.report.ID, e.worker.ID, geo.Point{Lat: 91, Lng: 0})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestUnassign(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Unassign(ctx, e.report.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.svc.Assign(ctx, e.report.ID, e.worker.ID)
	require.NoError(t, err)
	r, err := e.svc.Unassign(ctx, e.report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportSubmitted, r.Status)
	assert.Nil(t, r.AssignedTo)

	_, w, _ := e.reload(t)
	assert.Equal(t, model.WorkerAvailable, w.Status)
	assert.Nil(t, w.CurrentTaskID)
}

func TestSetStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SetStatus(ctx, e.worker.ID, model.WorkerBusy)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	p, err := e.svc.SetStatus(ctx, e.worker.ID, model.WorkerOffline)
	require.NoError(t, err)
	assert.Equal(t, model.WorkerOffline, p.Status)

	_, err = e.svc.SetStatus(ctx, e.citizen.ID, model.WorkerAvailable)
	assert.ErrorIs(t, err, ErrWorkerNotFound)

	_, err = e.svc.SetStatus(ctx, e.worker.ID, model.WorkerAvailable)
	require.NoError(t, err)
	_, err = e.svc.Assign(ctx, e.report.ID, e.worker.ID)
	require.NoError(t, err)
	_, err = e.svc.SetStatus(ctx, e.worker.ID, model.WorkerOffline)
	assert.ErrorIs(t, err, ErrHoldingTask)
}

func TestRoster(t *testing.T) {
	e := newEnv(t)
	e.profile(t, model.Profile{Email: "meena@example.com", Name: "Meena", Role: model.RoleSubworker, Ward: "Ward 3"})

	ws, err := e.svc.Roster("", "ward 12", SortName)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "Ravi", ws[0].Name)

	ws, err = e.svc.Roster(model.WorkerAvailable, "", SortName)
	require.NoError(t, err)
	assert.Len(t, ws, 2)
}
