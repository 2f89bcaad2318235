package model

import "time"

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionConfirmed RedemptionStatus = "confirmed"
	RedemptionShipped   RedemptionStatus = "shipped"
	RedemptionDelivered RedemptionStatus = "delivered"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

func (s RedemptionStatus) Valid() bool {
	switch s {
	case RedemptionPending, RedemptionConfirmed, RedemptionShipped, RedemptionDelivered, RedemptionCancelled:
		return true
	}
	return false
}

type Redemption struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	ItemID           int64            `json:"item_id"`
	Quantity         int              `json:"quantity"`
	TotalPointsSpent int              `json:"total_points_spent"`
	Status           RedemptionStatus `json:"status"`
	DeliveryAddress  string           `json:"delivery_address"`
	CreatedAt        time.Time        `json:"created_at"`
}

// RewardTransaction is a ledger entry. Points are positive when earned
// and negative when spent.
type RewardTransaction struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ReportID  *int64    `json:"report_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type PointBalance struct {
	UserID       int64               `json:"user_id"`
	Balance      int                 `json:"balance"`
	TotalEarned  int                 `json:"total_earned"`
	TotalSpent   int                 `json:"total_spent"`
	Transactions []RewardTransaction `json:"transactions"`
}
