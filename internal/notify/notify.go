// Package notify fans a user notification out to the notifications
// table, the user's push subscriptions, email and the realtime channel.
// Delivery is best-effort: failures are logged and never returned.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/niramay/internal/email"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/push"
	"github.com/dukerupert/niramay/internal/store"
	"github.com/dukerupert/niramay/internal/websocket"
)

// Notice is one notification addressed to one user.
type Notice struct {
	UserID   int64
	Title    string
	Message  string
	Type     string
	ReportID *int64

	// Email, when set, also sends the notice by email. Order switches the
	// email to a redemption confirmation.
	Email string
	Name  string
	Order *email.Order
}

func (n Notice) path() string {
	if n.Order != nil {
		return "/store/orders"
	}
	if n.ReportID != nil {
		return fmt.Sprintf("/reports/%d", *n.ReportID)
	}
	return "/notifications"
}

// Broadcaster is the realtime channel; *websocket.Hub implements it.
type Broadcaster interface {
	Broadcast(websocket.Message)
}

type Dispatcher struct {
	notifications *store.NotificationStore
	profiles      *store.ProfileStore
	subs          *store.PushStore
	push          *push.Service
	mailer        *email.Client
	hub           Broadcaster
	logger        *slog.Logger
}

// NewDispatcher wires the delivery channels. pushSvc, mailer and hub may
// be nil; the channel is then skipped.
func NewDispatcher(db *sql.DB, pushSvc *push.Service, mailer *email.Client, hub Broadcaster, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: store.NewNotificationStore(db),
		profiles:      store.NewProfileStore(db),
		subs:          store.NewPushStore(db),
		push:          pushSvc,
		mailer:        mailer,
		hub:           hub,
		logger:        logger,
	}
}

// deliveryTimeout bounds the push and email calls for one notice.
const deliveryTimeout = 5 * time.Second

// urgent notice types wake the recipient's device.
var urgent = map[string]bool{
	model.NotifTypeTaskAssigned: true,
	model.NotifTypeTaskRejected: true,
}

// Send records n and delivers it on every configured channel. Delivery
// outlives ctx's cancellation so a client hanging up mid-request still
// gets notified.
func (d *Dispatcher) Send(ctx context.Context, n Notice) {
	notif, err := d.notifications.Create(n.UserID, n.Title, n.Message, n.Type, n.ReportID)
	if err != nil {
		d.logger.Warn("create notification", "user_id", n.UserID, "type", n.Type, "error", err)
	} else if d.hub != nil {
		d.hub.Broadcast(websocket.NewMessage(websocket.EntityNotification, "created", notif.ID, nil).ForUser(n.UserID))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	d.sendPush(ctx, n)
	d.sendEmail(ctx, n)
}

// SendToAdmins delivers a copy of n to every admin.
func (d *Dispatcher) SendToAdmins(ctx context.Context, n Notice) {
	ids, err := d.profiles.ListAdminIDs()
	if err != nil {
		d.logger.Warn("list admins for notification", "type", n.Type, "error", err)
		return
	}
	for _, id := range ids {
		m := n
		m.UserID = id
		m.Email = ""
		m.Order = nil
		d.Send(ctx, m)
	}
}

func (d *Dispatcher) sendPush(ctx context.Context, n Notice) {
	if !d.push.Enabled() {
		return
	}

	subs, err := d.subs.ListByUser(n.UserID)
	if err != nil {
		d.logger.Warn("list push subscriptions", "user_id", n.UserID, "error", err)
		return
	}

	payload := push.Payload{
		Title: n.Title,
		Body:  n.Message,
		URL:   n.path(),
		Tag:   n.Type,

		Urgent: urgent[n.Type],
	}
	for i := range subs {
		err := d.push.Send(ctx, &subs[i], payload)
		if errors.Is(err, push.ErrExpired) {
			if err := d.subs.DeleteByEndpoint(subs[i].Endpoint); err != nil {
				d.logger.Warn("delete expired subscription", "id", subs[i].ID, "error", err)
			}
			continue
		}
		if err != nil {
			d.logger.Warn("send push", "user_id", n.UserID, "subscription_id", subs[i].ID, "error", err)
		}
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, n Notice) {
	if n.Email == "" || !d.mailer.Configured() {
		return
	}

	var err error
	if n.Order != nil {
		err = d.mailer.SendRedemptionConfirmation(ctx, n.Email, n.Name, *n.Order)
	} else {
		err = d.mailer.SendNotification(ctx, n.Email, n.Title, n.Message, n.Type, n.path())
	}
	if err != nil {
		d.logger.Warn("send notification email", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}
