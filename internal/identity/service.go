package identity

import (
	"context"
	"time"

	"kolo-backend/internal/domain"

	"gorm.io/gorm"
)

// Service manages identities and their wallet bindings. A binding is 1:1 and
// irreversible once confirmed.
type Service struct {
	DB *gorm.DB
}

// Ensure returns the identity, creating it when absent.
func (s *Service) Ensure(ctx context.Context, identityID string) (*domain.Identity, error) {
	var ident domain.Identity
	err := s.DB.WithContext(ctx).Where("identity_id = ?", identityID).First(&ident).Error
	if err == gorm.ErrRecordNotFound {
		ident = domain.Identity{IdentityID: identityID}
		if err := s.DB.WithContext(ctx).Create(&ident).Error; err != nil {
			return nil, err
		}
		return &ident, nil
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// Get returns the identity or ErrIdentityNotFound.
func (s *Service) Get(ctx context.Context, identityID string) (*domain.Identity, error) {
	var ident domain.Identity
	if err := s.DB.WithContext(ctx).Where("identity_id = ?", identityID).First(&ident).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// BindWallet attaches a wallet to the identity. The binding stays replaceable
// until confirmed; a confirmed binding is permanent.
func (s *Service) BindWallet(ctx context.Context, identityID, wallet string) (*domain.Identity, error) {
	if wallet == "" {
		return nil, ErrInvalidWallet
	}

	var ident domain.Identity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identity_id = ?", identityID).First(&ident).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrIdentityNotFound
			}
			return err
		}
		if ident.WalletConfirmed {
			return ErrWalletAlreadyBound
		}

		var other domain.Identity
		err := tx.Where("wallet = ? AND identity_id <> ?", wallet, identityID).First(&other).Error
		if err == nil {
			return ErrWalletTaken
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		ident.Wallet = &wallet
		return tx.Save(&ident).Error
	})
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// ConfirmWallet makes the pending binding permanent, normally after the
// on-chain ownership proof is observed.
func (s *Service) ConfirmWallet(ctx context.Context, identityID string) (*domain.Identity, error) {
	var ident domain.Identity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identity_id = ?", identityID).First(&ident).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrIdentityNotFound
			}
			return err
		}
		if ident.Wallet == nil {
			return ErrNoWalletToConfirm
		}
		if ident.WalletConfirmed {
			return nil
		}
		now := time.Now()
		ident.WalletConfirmed = true
		ident.WalletBoundAt = &now
		return tx.Save(&ident).Error
	})
	if err != nil {
		return nil, err
	}
	return &ident, nil
}
