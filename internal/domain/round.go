package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contribution records one member's payment for one round. Its presence is the
// sole signal of "has contributed this round".
type Contribution struct {
	ContributionID uuid.UUID `gorm:"column:contribution_id;type:uuid;primaryKey" json:"contribution_id"`
	CircleID       uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_contrib_circle_member_round" json:"circle_id"`
	IdentityID     string    `gorm:"column:identity_id;type:char(64);not null;uniqueIndex:idx_contrib_circle_member_round" json:"identity_id"`
	Round          int       `gorm:"column:round;not null;uniqueIndex:idx_contrib_circle_member_round" json:"round"`
	Amount         float64   `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	OnTime         bool      `gorm:"column:on_time;not null;default:true" json:"on_time"`
	CreatedAt      time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (Contribution) TableName() string {
	return "Contributions"
}

func (c *Contribution) BeforeCreate(tx *gorm.DB) error {
	if c.ContributionID == uuid.Nil {
		c.ContributionID = uuid.New()
	}
	return nil
}

// Bid is a sealed low-bid auction entry, amount in micro-units.
type Bid struct {
	BidID       uuid.UUID `gorm:"column:bid_id;type:uuid;primaryKey" json:"bid_id"`
	CircleID    uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_bid_circle_member_round" json:"circle_id"`
	IdentityID  string    `gorm:"column:identity_id;type:char(64);not null;uniqueIndex:idx_bid_circle_member_round" json:"identity_id"`
	Round       int       `gorm:"column:round;not null;uniqueIndex:idx_bid_circle_member_round" json:"round"`
	AmountMicro int64     `gorm:"column:amount_micro;not null" json:"amount_micro"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (Bid) TableName() string {
	return "Bids"
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.BidID == uuid.Nil {
		b.BidID = uuid.New()
	}
	return nil
}

// RoundResult finalizes one round. Creating it is the only event that advances
// a circle's current_round; it is immutable once written.
type RoundResult struct {
	ResultID          uuid.UUID `gorm:"column:result_id;type:uuid;primaryKey" json:"result_id"`
	CircleID          uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_result_circle_round" json:"circle_id"`
	Round             int       `gorm:"column:round;not null;uniqueIndex:idx_result_circle_round" json:"round"`
	WinnerIdentity    string    `gorm:"column:winner_identity;type:char(64);not null" json:"winner_identity"`
	WinningBidMicro   int64     `gorm:"column:winning_bid_micro;not null;default:0" json:"winning_bid_micro"`
	PoolTotal         float64   `gorm:"column:pool_total;type:decimal(18,2);not null" json:"pool_total"`
	ProtocolFee       float64   `gorm:"column:protocol_fee;type:decimal(18,2);not null;default:0" json:"protocol_fee"`
	Surplus           float64   `gorm:"column:surplus;type:decimal(18,2);not null;default:0" json:"surplus"`
	DividendPerMember float64   `gorm:"column:dividend_per_member;type:decimal(18,2);not null;default:0" json:"dividend_per_member"`
	SettledAt         time.Time `gorm:"column:settled_at;not null" json:"settled_at"`
	CreatedAt         time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (RoundResult) TableName() string {
	return "RoundResults"
}

func (r *RoundResult) BeforeCreate(tx *gorm.DB) error {
	if r.ResultID == uuid.Nil {
		r.ResultID = uuid.New()
	}
	return nil
}

// Repayment tracks an auction winner's installment for one repayment round.
// Upserted as installments arrive.
type Repayment struct {
	RepaymentID    uuid.UUID `gorm:"column:repayment_id;type:uuid;primaryKey" json:"repayment_id"`
	CircleID       uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_repay_circle_member_round" json:"circle_id"`
	IdentityID     string    `gorm:"column:identity_id;type:char(64);not null;uniqueIndex:idx_repay_circle_member_round" json:"identity_id"`
	RepaymentRound int       `gorm:"column:repayment_round;not null;uniqueIndex:idx_repay_circle_member_round" json:"repayment_round"`
	AmountDue      float64   `gorm:"column:amount_due;type:decimal(18,2);not null" json:"amount_due"`
	AmountPaid     float64   `gorm:"column:amount_paid;type:decimal(18,2);not null;default:0" json:"amount_paid"`
	OnTime         bool      `gorm:"column:on_time;not null;default:true" json:"on_time"`
	CreatedAt      time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Repayment) TableName() string {
	return "Repayments"
}

func (r *Repayment) BeforeCreate(tx *gorm.DB) error {
	if r.RepaymentID == uuid.Nil {
		r.RepaymentID = uuid.New()
	}
	return nil
}
