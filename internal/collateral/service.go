package collateral

import (
	"context"
	"math"
	"sync"

	"kolo-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LTV ratio policy bounds.
const (
	MinLTVRatio = 0.50
	MaxLTVRatio = 0.90
)

// Service is the collateral ledger. Capacity checks and the writes that depend
// on them run inside a single DB transaction so that concurrent locks against
// the same wallet cannot jointly exceed capacity.
type Service struct {
	DB     *gorm.DB
	Oracle PriceOracle

	mu             sync.RWMutex
	ltv            float64
	totalDeposited float64
}

// NewService builds the ledger with the configured LTV ratio. Out-of-bounds
// values are clamped into policy bounds rather than rejected at startup.
func NewService(db *gorm.DB, oracle PriceOracle, ltv float64) *Service {
	if ltv < MinLTVRatio {
		ltv = MinLTVRatio
	}
	if ltv > MaxLTVRatio {
		ltv = MaxLTVRatio
	}
	return &Service{DB: db, Oracle: oracle, ltv: ltv}
}

// LTVRatio returns the current global loan-to-value ratio.
func (s *Service) LTVRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ltv
}

// SetLTVRatio tunes the global LTV ratio. Open commitments are grandfathered:
// the new ratio only affects capacity computed after the change.
func (s *Service) SetLTVRatio(ratio float64) error {
	if ratio < MinLTVRatio || ratio > MaxLTVRatio {
		return ErrInvalidLTV
	}
	s.mu.Lock()
	s.ltv = ratio
	s.mu.Unlock()
	log.Info().Float64("ltv_ratio", ratio).Msg("LTV ratio updated")
	return nil
}

// TotalDeposited is an observability-only running counter of deposits.
func (s *Service) TotalDeposited() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDeposited
}

// Deposit credits a wallet's account for one asset class.
func (s *Service) Deposit(ctx context.Context, wallet, asset string, amount float64) (*domain.CollateralAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var account domain.CollateralAccount
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("wallet = ? AND asset = ?", wallet, asset).First(&account).Error
		if err == gorm.ErrRecordNotFound {
			account = domain.CollateralAccount{Wallet: wallet, Asset: asset, Deposited: roundCents(amount)}
			return tx.Create(&account).Error
		}
		if err != nil {
			return err
		}
		account.Deposited = roundCents(account.Deposited + amount)
		return tx.Save(&account).Error
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.totalDeposited = roundCents(s.totalDeposited + amount)
	s.mu.Unlock()
	log.Info().Str("wallet", wallet).Str("asset", asset).Float64("amount", amount).Msg("Collateral deposited")
	return &account, nil
}

// Withdraw debits a wallet's account. The withdrawal must not drop the
// wallet's total deposits below what its open commitments require under LTV.
func (s *Service) Withdraw(ctx context.Context, wallet, asset string, amount float64) (*domain.CollateralAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	ltv := s.LTVRatio()

	var account domain.CollateralAccount
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("wallet = ? AND asset = ?", wallet, asset).First(&account).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNoDeposit
			}
			return err
		}
		if account.Deposited < amount {
			return ErrInsufficientBalance
		}

		totalDeposited, err := walletDeposited(tx, wallet)
		if err != nil {
			return err
		}
		committed, err := walletCommitted(tx, wallet)
		if err != nil {
			return err
		}
		if committed > roundCents((totalDeposited-amount)*ltv) {
			return ErrInsufficientBalance
		}

		account.Deposited = roundCents(account.Deposited - amount)
		return tx.Save(&account).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// AvailableCapacity returns deposited*ltv - committed for the wallet, floored
// at zero. Unknown wallets report zero capacity, not an error.
func (s *Service) AvailableCapacity(ctx context.Context, wallet string) (float64, error) {
	ltv := s.LTVRatio()
	db := s.DB.WithContext(ctx)
	deposited, err := walletDeposited(db, wallet)
	if err != nil {
		return 0, err
	}
	committed, err := walletCommitted(db, wallet)
	if err != nil {
		return 0, err
	}
	capacity := roundCents(deposited*ltv - committed)
	if capacity < 0 {
		capacity = 0
	}
	return capacity, nil
}

// Lock reserves usdAmount of the wallet's capacity against a circle. At most
// one open Commitment exists per (wallet, circle); re-locking is rejected.
func (s *Service) Lock(ctx context.Context, wallet string, circleID uuid.UUID, usdAmount float64) (*domain.Commitment, error) {
	var commitment domain.Commitment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.lockTx(tx, wallet, circleID, usdAmount, &commitment)
	})
	if err != nil {
		return nil, err
	}
	return &commitment, nil
}

// LockTx is Lock running inside a caller-owned transaction, so that circle
// creation/joining and the collateral lock commit or roll back together.
func (s *Service) LockTx(tx *gorm.DB, wallet string, circleID uuid.UUID, usdAmount float64) (*domain.Commitment, error) {
	var commitment domain.Commitment
	if err := s.lockTx(tx, wallet, circleID, usdAmount, &commitment); err != nil {
		return nil, err
	}
	return &commitment, nil
}

func (s *Service) lockTx(tx *gorm.DB, wallet string, circleID uuid.UUID, usdAmount float64, out *domain.Commitment) error {
	if usdAmount <= 0 {
		return ErrInvalidAmount
	}
	ltv := s.LTVRatio()

	deposited, err := walletDeposited(tx, wallet)
	if err != nil {
		return err
	}
	if deposited == 0 {
		return ErrNoDeposit
	}

	var existing domain.Commitment
	err = tx.Where("wallet = ? AND circle_id = ?", wallet, circleID).First(&existing).Error
	if err == nil {
		return ErrCommitmentExists
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	committed, err := walletCommitted(tx, wallet)
	if err != nil {
		return err
	}
	capacity := roundCents(deposited*ltv - committed)
	if usdAmount > capacity {
		return ErrInsufficientCapacity
	}

	*out = domain.Commitment{Wallet: wallet, CircleID: circleID, AmountUSD: roundCents(usdAmount)}
	return tx.Create(out).Error
}

// Release deletes the wallet's commitment for a circle, restoring capacity.
func (s *Service) Release(ctx context.Context, wallet string, circleID uuid.UUID) error {
	return s.ReleaseTx(s.DB.WithContext(ctx), wallet, circleID)
}

// ReleaseTx is Release inside a caller-owned transaction (circle completion
// releases every member's commitment atomically with the final settlement).
func (s *Service) ReleaseTx(tx *gorm.DB, wallet string, circleID uuid.UUID) error {
	res := tx.Where("wallet = ? AND circle_id = ?", wallet, circleID).Delete(&domain.Commitment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCommitmentNotFound
	}
	return nil
}

// Slash reduces the wallet's deposits by up to usdAmount as a penalty and
// always deletes the commitment, even when deposits cannot cover the full
// amount. Returns the amount actually slashed.
func (s *Service) Slash(ctx context.Context, wallet string, circleID uuid.UUID, usdAmount float64) (float64, error) {
	if usdAmount <= 0 {
		return 0, ErrInvalidAmount
	}

	var slashed float64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var commitment domain.Commitment
		if err := tx.Where("wallet = ? AND circle_id = ?", wallet, circleID).First(&commitment).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCommitmentNotFound
			}
			return err
		}

		var accounts []domain.CollateralAccount
		if err := tx.Where("wallet = ?", wallet).Order("deposited DESC").Find(&accounts).Error; err != nil {
			return err
		}

		remaining := usdAmount
		for i := range accounts {
			if remaining <= 0 {
				break
			}
			cut := math.Min(remaining, accounts[i].Deposited)
			if cut <= 0 {
				continue
			}
			accounts[i].Deposited = roundCents(accounts[i].Deposited - cut)
			if err := tx.Save(&accounts[i]).Error; err != nil {
				return err
			}
			slashed = roundCents(slashed + cut)
			remaining = roundCents(remaining - cut)
		}

		return tx.Delete(&commitment).Error
	})
	if err != nil {
		return 0, err
	}
	log.Warn().Str("wallet", wallet).Str("circle_id", circleID.String()).Float64("slashed", slashed).Msg("Collateral slashed")
	return slashed, nil
}

// CalculateCommitmentUSD converts a token-denominated round pool
// (contribution * members) to USD using the oracle price for the asset.
func (s *Service) CalculateCommitmentUSD(ctx context.Context, asset string, contributionAmount float64, memberCount int) (float64, error) {
	if contributionAmount <= 0 || memberCount <= 0 {
		return 0, ErrInvalidAmount
	}
	price, _, err := s.Oracle.Price(ctx, asset)
	if err != nil {
		return 0, err
	}
	pool := decimal.NewFromFloat(contributionAmount).Mul(decimal.NewFromInt(int64(memberCount)))
	return usdCents(pool.Mul(price)), nil
}

func walletDeposited(tx *gorm.DB, wallet string) (float64, error) {
	var total float64
	err := tx.Model(&domain.CollateralAccount{}).Where("wallet = ?", wallet).
		Select("COALESCE(SUM(deposited), 0)").Scan(&total).Error
	return total, err
}

func walletCommitted(tx *gorm.DB, wallet string) (float64, error) {
	var total float64
	err := tx.Model(&domain.Commitment{}).Where("wallet = ?", wallet).
		Select("COALESCE(SUM(amount_usd), 0)").Scan(&total).Error
	return total, err
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
