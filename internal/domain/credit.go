package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditProfile accumulates payment and completion history per identity.
// Counters only grow; the score is recomputed from them on every update and
// must be re-derivable from the stored counters alone.
type CreditProfile struct {
	ProfileID          uuid.UUID  `gorm:"column:profile_id;type:uuid;primaryKey" json:"profile_id"`
	IdentityID         string     `gorm:"column:identity_id;type:char(64);not null;uniqueIndex" json:"identity_id"`
	Score              int        `gorm:"column:score;not null;default:300" json:"score"`
	TotalPayments      int        `gorm:"column:total_payments;not null;default:0" json:"total_payments"`
	OnTimePayments     int        `gorm:"column:on_time_payments;not null;default:0" json:"on_time_payments"`
	LatePayments       int        `gorm:"column:late_payments;not null;default:0" json:"late_payments"`
	CirclesCompleted   int        `gorm:"column:circles_completed;not null;default:0" json:"circles_completed"`
	CirclesDefaulted   int        `gorm:"column:circles_defaulted;not null;default:0" json:"circles_defaulted"`
	CirclesPaidInto    int        `gorm:"column:circles_paid_into;not null;default:0" json:"circles_paid_into"`
	TotalVolume        float64    `gorm:"column:total_volume;type:decimal(18,2);not null;default:0" json:"total_volume"`
	FirstActivityAt    *time.Time `gorm:"column:first_activity_at" json:"first_activity_at"`
	LastUpdatedAt      time.Time  `gorm:"column:last_updated_at" json:"last_updated_at"`
	CreatedAt          time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (CreditProfile) TableName() string {
	return "CreditProfiles"
}

func (p *CreditProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ProfileID == uuid.Nil {
		p.ProfileID = uuid.New()
	}
	return nil
}

// CreditActivity marks that an identity has paid into a circle at least once.
// One row per (identity, circle); CirclesPaidInto is the row count.
type CreditActivity struct {
	ActivityID uuid.UUID `gorm:"column:activity_id;type:uuid;primaryKey" json:"activity_id"`
	IdentityID string    `gorm:"column:identity_id;type:char(64);not null;uniqueIndex:idx_identity_circle" json:"identity_id"`
	CircleID   uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_identity_circle" json:"circle_id"`
	CreatedAt  time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (CreditActivity) TableName() string {
	return "CreditActivities"
}

func (a *CreditActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ActivityID == uuid.Nil {
		a.ActivityID = uuid.New()
	}
	return nil
}
