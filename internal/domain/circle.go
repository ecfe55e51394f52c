package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Circle lifecycle statuses. Economic parameters are immutable after create;
// only Status and CurrentRound change afterwards.
const (
	CircleStatusPendingCreation = "pending_creation"
	CircleStatusForming         = "forming"
	CircleStatusActive          = "active"
	CircleStatusCompleted       = "completed"
	CircleStatusPaused          = "paused"
	CircleStatusDissolved       = "dissolved"
)

// Payout modes, selected at creation and mutually exclusive.
const (
	PayoutModeFixed   = "fixed"
	PayoutModeAuction = "auction"
)

type Circle struct {
	CircleID           uuid.UUID  `gorm:"column:circle_id;type:uuid;primaryKey" json:"circle_id"`
	CreatorID          string     `gorm:"column:creator_id;type:char(64);not null" json:"creator_id"`
	Name               string     `gorm:"column:name;not null" json:"name"`
	PayoutMode         string     `gorm:"column:payout_mode;type:varchar(10);not null" json:"payout_mode"`
	ContributionAmount float64    `gorm:"column:contribution_amount;type:decimal(18,2);not null" json:"contribution_amount"`
	TotalMembers       int        `gorm:"column:total_members;not null" json:"total_members"`
	RoundDurationSecs  int64      `gorm:"column:round_duration_secs;not null" json:"round_duration_secs"`
	GracePeriodSecs    int64      `gorm:"column:grace_period_secs;not null;default:0" json:"grace_period_secs"`
	BidWindowSecs      *int64     `gorm:"column:bid_window_secs" json:"bid_window_secs"`
	Asset              string     `gorm:"column:asset;type:varchar(16);not null" json:"asset"`
	Status             string     `gorm:"column:status;type:varchar(20);not null;default:'pending_creation'" json:"status"`
	CurrentRound       int        `gorm:"column:current_round;not null;default:0" json:"current_round"`
	ChainAddress       *string    `gorm:"column:chain_address;type:varchar(128)" json:"chain_address"`
	StartedAt          *time.Time `gorm:"column:started_at" json:"started_at"`
	CreatedAt          time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Circle) TableName() string {
	return "Circles"
}

func (c *Circle) BeforeCreate(tx *gorm.DB) error {
	if c.CircleID == uuid.Nil {
		c.CircleID = uuid.New()
	}
	return nil
}

// Accepting reports whether the circle still takes joiners.
func (c *Circle) Accepting() bool {
	return c.Status == CircleStatusForming || c.Status == CircleStatusPendingCreation
}

// Member is one participant of a circle. Position is set for fixed-order
// circles; the won_* fields track the auction variant.
type Member struct {
	MemberID    uuid.UUID `gorm:"column:member_id;type:uuid;primaryKey" json:"member_id"`
	CircleID    uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_circle_identity" json:"circle_id"`
	IdentityID  string    `gorm:"column:identity_id;type:char(64);not null;uniqueIndex:idx_circle_identity" json:"identity_id"`
	Wallet      string    `gorm:"column:wallet;type:varchar(64);not null" json:"wallet"`
	Position    *int      `gorm:"column:position" json:"position"`
	HasWon      bool      `gorm:"column:has_won;not null;default:false" json:"has_won"`
	WonRound    *int      `gorm:"column:won_round" json:"won_round"`
	WonAmount   float64   `gorm:"column:won_amount;type:decimal(18,2);not null;default:0" json:"won_amount"`
	TotalRepaid float64   `gorm:"column:total_repaid;type:decimal(18,2);not null;default:0" json:"total_repaid"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Member) TableName() string {
	return "Members"
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.MemberID == uuid.Nil {
		m.MemberID = uuid.New()
	}
	return nil
}

// CircleEvent is an audit record for circle lifecycle changes.
type CircleEvent struct {
	EventID       uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	CircleID      uuid.UUID      `gorm:"column:circle_id;type:uuid;not null;index" json:"circle_id"`
	EventType     string         `gorm:"column:event_type;type:varchar(20);not null" json:"event_type"`
	ActorIdentity *string        `gorm:"column:actor_identity;type:char(64)" json:"actor_identity"`
	EventData     datatypes.JSON `gorm:"column:event_data;type:json" json:"event_data"`
	CreatedAt     time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (CircleEvent) TableName() string {
	return "CircleEvents"
}

func (e *CircleEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
