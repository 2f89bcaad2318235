// Package ledger converts eco-points into store orders and owns every
// other change to a profile's point balance. Each balance change is
// written together with its RewardTransaction in one database
// transaction, so the ledger sum always tracks the profile balance.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/niramay/internal/email"
	"github.com/dukerupert/niramay/internal/metrics"
	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/notify"
	"github.com/dukerupert/niramay/internal/store"
)

// Notifier delivers best-effort user notifications.
type Notifier interface {
	Send(ctx context.Context, n notify.Notice)
}

type Ledger struct {
	db       *sql.DB
	profiles *store.ProfileStore
	items    *store.ItemStore
	rewards  *store.RewardStore
	notifier Notifier
	logger   *slog.Logger
}

func New(db *sql.DB, notifier Notifier, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:       db,
		profiles: store.NewProfileStore(db),
		items:    store.NewItemStore(db),
		rewards:  store.NewRewardStore(db),
		notifier: notifier,
		logger:   logger,
	}
}

type RedeemRequest struct {
	UserID          int64
	ItemID          int64
	Quantity        int
	DeliveryAddress string
}

// Order is the summary returned to the citizen after a redemption.
type Order struct {
	RedemptionID     int64                  `json:"redemption_id"`
	ItemID           int64                  `json:"item_id"`
	ItemName         string                 `json:"item_name"`
	Quantity         int                    `json:"quantity"`
	PointsSpent      int                    `json:"points_spent"`
	DeliveryAddress  string                 `json:"delivery_address"`
	Status           model.RedemptionStatus `json:"status"`
	RemainingBalance int                    `json:"remaining_balance"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Redeem exchanges a user's eco-points for quantity units of a store item.
//
// All reads and checks happen before the first write. The redemption
// row, the balance debit, the stock decrement and the ledger entry are
// then written in one transaction; any failure rolls all of them back.
// The debit and the decrement are conditional on the balance and stock
// still covering the order, so two concurrent redemptions cannot
// overspend.
func (l *Ledger) Redeem(ctx context.Context, req RedeemRequest) (order *Order, err error) {
	defer func() { metrics.Redemptions.WithLabelValues(outcome(err)).Inc() }()

	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	profile, err := l.profiles.GetByID(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}

	item, err := l.items.GetByID(req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("get store item: %w", err)
	}
	if item == nil || !item.IsActive {
		return nil, ErrItemNotFound
	}

	if item.Quantity < req.Quantity {
		return nil, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientInventory, req.Quantity, item.Quantity)
	}

	required := item.PointCost * req.Quantity
	if profile.EcoPoints < required {
		return nil, fmt.Errorf("%w: %d required, %d available", ErrInsufficientPoints, required, profile.EcoPoints)
	}

	address, err := resolveAddress(req.DeliveryAddress, profile.Address)
	if err != nil {
		return nil, err
	}
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin redemption: %w", err)
	}
	defer tx.Rollback()

	rewards := l.rewards.WithTx(tx)
	redemption, err := rewards.CreateRedemption(profile.ID, item.ID, req.Quantity, required, address)
	if err != nil {
		return nil, fmt.Errorf("create redemption: %w", err)
	}

	ok, err := l.profiles.WithTx(tx).DebitPoints(profile.ID, required)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if !ok {
		return nil, ErrInsufficientPoints
	}

	ok, err = l.items.WithTx(tx).DecrementStock(item.ID, req.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInventoryUpdateFailed, err)
	}
	if !ok {
		return nil, ErrInsufficientInventory
	}

	reason := fmt.Sprintf("Redeemed %d x %s", req.Quantity, item.Name)
	if _, err := rewards.RecordTransaction(profile.ID, nil, -required, reason); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redemption: %w", err)
	}

	order = &Order{
		RedemptionID:     redemption.ID,
		ItemID:           item.ID,
		ItemName:         item.Name,
		Quantity:         req.Quantity,
		PointsSpent:      required,
		DeliveryAddress:  address,
		Status:           redemption.Status,
		RemainingBalance: profile.EcoPoints - required,
		CreatedAt:        redemption.CreatedAt,
	}

	l.logger.Info("redemption completed",
		"user_id", profile.ID, "item_id", item.ID, "quantity", req.Quantity, "points", required)

	if l.notifier != nil {
		l.notifier.Send(ctx, notify.Notice{
			UserID:  profile.ID,
			Title:   "Redemption confirmed",
			Message: fmt.Sprintf("Your order for %d x %s (%d eco-points) will be delivered to %s.", req.Quantity, item.Name, required, address),
			Type:    model.NotifTypeRedemption,
			Email:   profile.Email,
			Name:    profile.Name,
			Order: &email.Order{
				ItemName:        item.Name,
				Quantity:        req.Quantity,
				PointsSpent:     required,
				DeliveryAddress: address,
			},
		})
	}

	return order, nil
}

// Adjust applies a manual balance change and records it in the ledger.
// A negative adjustment that would take the balance below zero fails with
// ErrInsufficientPoints.
func (l *Ledger) Adjust(ctx context.Context, userID int64, points int, reason string) (*model.RewardTransaction, error) {
	if points == 0 {
		return nil, fmt.Errorf("%w: adjustment must be non-zero", ErrValidation)
	}

	profile, err := l.profiles.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin adjustment: %w", err)
	}
	defer tx.Rollback()

	entry, err := Apply(l.profiles.WithTx(tx), l.rewards.WithTx(tx), userID, nil, points, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit adjustment: %w", err)
	}
	return entry, nil
}

// Apply changes a balance and writes the matching ledger entry using
// stores bound to the caller's transaction. Positive points credit the
// user; negative points debit them only if the balance covers it.
func Apply(profiles *store.ProfileStore, rewards *store.RewardStore, userID int64, reportID *int64, points int, reason string) (*model.RewardTransaction, error) {
	if points >= 0 {
		if err := profiles.CreditPoints(userID, points); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
	} else {
		ok, err := profiles.DebitPoints(userID, -points)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
		if !ok {
			return nil, ErrInsufficientPoints
		}
	}

	entry, err := rewards.RecordTransaction(userID, reportID, points, reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	return entry, nil
}
