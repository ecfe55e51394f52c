package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CollateralAccount holds a wallet's deposited value for one asset class.
// Deposits are recorded in USD-equivalent units; spendable capacity is
// deposited * LTV minus the wallet's open commitments.
type CollateralAccount struct {
	AccountID uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey" json:"account_id"`
	Wallet    string    `gorm:"column:wallet;type:varchar(64);not null;uniqueIndex:idx_wallet_asset" json:"wallet"`
	Asset     string    `gorm:"column:asset;type:varchar(16);not null;uniqueIndex:idx_wallet_asset" json:"asset"`
	Deposited float64   `gorm:"column:deposited;type:decimal(18,2);not null;default:0" json:"deposited"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (CollateralAccount) TableName() string {
	return "CollateralAccounts"
}

func (a *CollateralAccount) BeforeCreate(tx *gorm.DB) error {
	if a.AccountID == uuid.Nil {
		a.AccountID = uuid.New()
	}
	return nil
}

// Commitment is a USD-denominated lock against a wallet's collateral for one circle.
// Exactly one open Commitment exists per (wallet, circle).
type Commitment struct {
	CommitmentID uuid.UUID `gorm:"column:commitment_id;type:uuid;primaryKey" json:"commitment_id"`
	Wallet       string    `gorm:"column:wallet;type:varchar(64);not null;uniqueIndex:idx_wallet_circle" json:"wallet"`
	CircleID     uuid.UUID `gorm:"column:circle_id;type:uuid;not null;uniqueIndex:idx_wallet_circle" json:"circle_id"`
	AmountUSD    float64   `gorm:"column:amount_usd;type:decimal(18,2);not null" json:"amount_usd"`
	CreatedAt    time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Commitment) TableName() string {
	return "Commitments"
}

func (c *Commitment) BeforeCreate(tx *gorm.DB) error {
	if c.CommitmentID == uuid.Nil {
		c.CommitmentID = uuid.New()
	}
	return nil
}

// AssetPrice is the oracle table: USD price per whole token with the token's
// on-chain decimal precision.
type AssetPrice struct {
	Asset     string          `gorm:"column:asset;type:varchar(16);primaryKey" json:"asset"`
	PriceUSD  decimal.Decimal `gorm:"column:price_usd;type:decimal(30,18);not null" json:"price_usd"`
	Decimals  int32           `gorm:"column:decimals;not null;default:6" json:"decimals"`
	UpdatedAt time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (AssetPrice) TableName() string {
	return "AssetPrices"
}
