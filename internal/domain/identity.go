package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Identity is an opaque handle for a person, independent of any wallet.
// A wallet may be bound exactly once; the binding is permanent after confirmation.
type Identity struct {
	IdentityID      string     `gorm:"column:identity_id;type:char(64);primaryKey" json:"identity_id"`
	Wallet          *string    `gorm:"column:wallet;type:varchar(64);uniqueIndex" json:"wallet"`
	WalletConfirmed bool       `gorm:"column:wallet_confirmed;not null;default:false" json:"wallet_confirmed"`
	WalletBoundAt   *time.Time `gorm:"column:wallet_bound_at" json:"wallet_bound_at"`
	CreatedAt       time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Identity) TableName() string {
	return "Identities"
}

// NewIdentityHandle returns a fresh random 32-byte handle, hex encoded.
func NewIdentityHandle() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
