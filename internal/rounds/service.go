package rounds

import (
	"context"
	"math"
	"time"

	"kolo-backend/internal/collateral"
	"kolo-backend/internal/credit"
	"kolo-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Protocol fee charged on fixed-order payouts.
const fixedPayoutFeeRate = 0.01

// Service is the round settlement engine. It persists round outcomes under the
// uniqueness and ordering invariants; auction fee/dividend arithmetic arrives
// precomputed from the caller.
type Service struct {
	DB         *gorm.DB
	Collateral *collateral.Service
	Credit     *credit.Service
}

// Contribute records one member's payment for the circle's current round.
func (s *Service) Contribute(ctx context.Context, circleID uuid.UUID, identityID string, amount float64) (*domain.Contribution, error) {
	var contribution domain.Contribution
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := activeCircle(tx, circleID)
		if err != nil {
			return err
		}
		if amount != circle.ContributionAmount {
			return ErrInvalidAmount
		}
		if _, err := circleMember(tx, circleID, identityID); err != nil {
			return err
		}

		var existing domain.Contribution
		err = tx.Where("circle_id = ? AND identity_id = ? AND round = ?", circleID, identityID, circle.CurrentRound).
			First(&existing).Error
		if err == nil {
			return ErrAlreadyContributed
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		onTime := withinRoundWindow(circle, circle.CurrentRound, time.Now())
		contribution = domain.Contribution{
			CircleID:   circleID,
			IdentityID: identityID,
			Round:      circle.CurrentRound,
			Amount:     amount,
			OnTime:     onTime,
		}
		if err := tx.Create(&contribution).Error; err != nil {
			return err
		}

		_, err = s.Credit.RecordPaymentTx(tx, identityID, circleID, circle.CurrentRound, amount, onTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &contribution, nil
}

// ProcessPayout settles the current round of a fixed-order circle: all members
// must have contributed; the recipient is the member whose position matches
// the round. The final payout completes the circle and releases every
// member's commitment in the same transaction.
func (s *Service) ProcessPayout(ctx context.Context, circleID uuid.UUID) (*domain.RoundResult, error) {
	var result domain.RoundResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := activeCircle(tx, circleID)
		if err != nil {
			return err
		}
		if circle.PayoutMode != domain.PayoutModeFixed {
			return ErrPayoutModeMismatch
		}

		var contributed int64
		if err := tx.Model(&domain.Contribution{}).
			Where("circle_id = ? AND round = ?", circleID, circle.CurrentRound).
			Count(&contributed).Error; err != nil {
			return err
		}
		if int(contributed) < circle.TotalMembers {
			return ErrContributionsIncomplete
		}

		position := circle.CurrentRound + 1
		var recipient domain.Member
		if err := tx.Where("circle_id = ? AND position = ?", circleID, position).First(&recipient).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotMember
			}
			return err
		}

		pool := roundCents(circle.ContributionAmount * float64(circle.TotalMembers))
		fee := roundCents(pool * fixedPayoutFeeRate)
		result = domain.RoundResult{
			CircleID:       circleID,
			Round:          circle.CurrentRound,
			WinnerIdentity: recipient.IdentityID,
			PoolTotal:      pool,
			ProtocolFee:    fee,
			SettledAt:      time.Now(),
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}

		wonRound := circle.CurrentRound
		recipient.HasWon = true
		recipient.WonRound = &wonRound
		recipient.WonAmount = roundCents(pool - fee)
		if err := tx.Save(&recipient).Error; err != nil {
			return err
		}

		return s.advanceRound(tx, circle)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("circle_id", circleID.String()).Int("round", result.Round).Msg("Fixed-order payout processed")
	return &result, nil
}

// PlaceBid records a sealed low bid for the current round of an auction
// circle. Only members who have contributed this round and have not yet won
// may bid, at most once per round.
func (s *Service) PlaceBid(ctx context.Context, circleID uuid.UUID, identityID string, amountMicro int64) (*domain.Bid, error) {
	var bid domain.Bid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := activeCircle(tx, circleID)
		if err != nil {
			return err
		}
		if circle.PayoutMode != domain.PayoutModeAuction {
			return ErrPayoutModeMismatch
		}
		if amountMicro <= 0 {
			return ErrInvalidBid
		}

		member, err := circleMember(tx, circleID, identityID)
		if err != nil {
			return err
		}
		if member.HasWon {
			return ErrAlreadyWon
		}

		var contributed int64
		if err := tx.Model(&domain.Contribution{}).
			Where("circle_id = ? AND identity_id = ? AND round = ?", circleID, identityID, circle.CurrentRound).
			Count(&contributed).Error; err != nil {
			return err
		}
		if contributed == 0 {
			return ErrContributionRequired
		}

		var existing domain.Bid
		err = tx.Where("circle_id = ? AND identity_id = ? AND round = ?", circleID, identityID, circle.CurrentRound).
			First(&existing).Error
		if err == nil {
			return ErrBidExists
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		bid = domain.Bid{
			CircleID:    circleID,
			IdentityID:  identityID,
			Round:       circle.CurrentRound,
			AmountMicro: amountMicro,
		}
		return tx.Create(&bid).Error
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// SettleParams carry a resolved auction outcome. Fee, surplus and dividend
// arithmetic is computed by the caller; the engine persists it under the
// uniqueness and ordering invariants.
type SettleParams struct {
	Round             int
	WinnerIdentity    string
	WinningBidMicro   int64
	PoolTotal         float64
	ProtocolFee       float64
	Surplus           float64
	DividendPerMember float64
}

// Settle finalizes an auction round. The unique (circle, round) RoundResult is
// the idempotency boundary: a second settlement for the same round fails with
// ErrRoundAlreadySettled, and current_round never moves backward or skips.
func (s *Service) Settle(ctx context.Context, circleID uuid.UUID, params SettleParams) (*domain.RoundResult, error) {
	var result domain.RoundResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := activeCircle(tx, circleID)
		if err != nil {
			return err
		}
		if circle.PayoutMode != domain.PayoutModeAuction {
			return ErrPayoutModeMismatch
		}

		var existing domain.RoundResult
		err = tx.Where("circle_id = ? AND round = ?", circleID, params.Round).First(&existing).Error
		if err == nil {
			return ErrRoundAlreadySettled
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if params.Round != circle.CurrentRound {
			return ErrInvalidRound
		}

		winner, err := circleMember(tx, circleID, params.WinnerIdentity)
		if err != nil {
			return err
		}
		if winner.HasWon {
			return ErrAlreadyWon
		}

		result = domain.RoundResult{
			CircleID:          circleID,
			Round:             params.Round,
			WinnerIdentity:    params.WinnerIdentity,
			WinningBidMicro:   params.WinningBidMicro,
			PoolTotal:         params.PoolTotal,
			ProtocolFee:       params.ProtocolFee,
			Surplus:           params.Surplus,
			DividendPerMember: params.DividendPerMember,
			SettledAt:         time.Now(),
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}

		wonRound := params.Round
		winner.HasWon = true
		winner.WonRound = &wonRound
		winner.WonAmount = roundCents(params.PoolTotal - params.ProtocolFee - params.Surplus)
		if err := tx.Save(&winner).Error; err != nil {
			return err
		}

		return s.advanceRound(tx, circle)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("circle_id", circleID.String()).Int("round", result.Round).
		Str("winner", result.WinnerIdentity).Msg("Auction round settled")
	return &result, nil
}

// Repay upserts one of the winner's repayment installments and bumps the
// member's running total. Repayments remain writable after circle completion.
func (s *Service) Repay(ctx context.Context, circleID uuid.UUID, identityID string, repaymentRound int, amountDue, amountPaid float64, onTime bool) (*domain.Repayment, error) {
	if amountPaid <= 0 {
		return nil, ErrInvalidAmount
	}

	var repayment domain.Repayment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var circle domain.Circle
		if err := tx.Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCircleNotFound
			}
			return err
		}

		member, err := circleMember(tx, circleID, identityID)
		if err != nil {
			return err
		}
		if !member.HasWon {
			return ErrNotWinner
		}

		err = tx.Where("circle_id = ? AND identity_id = ? AND repayment_round = ?", circleID, identityID, repaymentRound).
			First(&repayment).Error
		if err == gorm.ErrRecordNotFound {
			repayment = domain.Repayment{
				CircleID:       circleID,
				IdentityID:     identityID,
				RepaymentRound: repaymentRound,
				AmountDue:      roundCents(amountDue),
				AmountPaid:     roundCents(amountPaid),
				OnTime:         onTime,
			}
			if err := tx.Create(&repayment).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			repayment.AmountPaid = roundCents(repayment.AmountPaid + amountPaid)
			repayment.OnTime = repayment.OnTime && onTime
			if err := tx.Save(&repayment).Error; err != nil {
				return err
			}
		}

		member.TotalRepaid = roundCents(member.TotalRepaid + amountPaid)
		if err := tx.Save(member).Error; err != nil {
			return err
		}

		_, err = s.Credit.RecordPaymentTx(tx, identityID, circleID, repaymentRound, amountPaid, onTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &repayment, nil
}

// Results returns the settled rounds of a circle in round order.
func (s *Service) Results(ctx context.Context, circleID uuid.UUID) ([]domain.RoundResult, error) {
	var results []domain.RoundResult
	err := s.DB.WithContext(ctx).Where("circle_id = ?", circleID).Order("round ASC").Find(&results).Error
	return results, err
}

// RoundStatus summarizes the current round for callers.
type RoundStatus struct {
	CurrentRound  int   `json:"current_round"`
	Contributions int64 `json:"contributions"`
	Bids          int64 `json:"bids"`
	TotalMembers  int   `json:"total_members"`
}

// Status reports contribution/bid progress for the circle's current round.
func (s *Service) Status(ctx context.Context, circleID uuid.UUID) (*RoundStatus, error) {
	db := s.DB.WithContext(ctx)
	var circle domain.Circle
	if err := db.Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCircleNotFound
		}
		return nil, err
	}

	status := &RoundStatus{CurrentRound: circle.CurrentRound, TotalMembers: circle.TotalMembers}
	if err := db.Model(&domain.Contribution{}).
		Where("circle_id = ? AND round = ?", circleID, circle.CurrentRound).
		Count(&status.Contributions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Bid{}).
		Where("circle_id = ? AND round = ?", circleID, circle.CurrentRound).
		Count(&status.Bids).Error; err != nil {
		return nil, err
	}
	return status, nil
}

// advanceRound moves the circle forward by exactly one round. Reaching
// total_members completes the circle: commitments release and completion
// outcomes land on every member's credit profile, all in the caller's
// transaction.
func (s *Service) advanceRound(tx *gorm.DB, circle *domain.Circle) error {
	circle.CurrentRound++
	if circle.CurrentRound >= circle.TotalMembers {
		circle.Status = domain.CircleStatusCompleted
		if err := tx.Save(circle).Error; err != nil {
			return err
		}

		var members []domain.Member
		if err := tx.Where("circle_id = ?", circle.CircleID).Find(&members).Error; err != nil {
			return err
		}
		for _, m := range members {
			if err := s.Collateral.ReleaseTx(tx, m.Wallet, circle.CircleID); err != nil && err != collateral.ErrCommitmentNotFound {
				return err
			}
			if _, err := s.Credit.RecordCompletionTx(tx, m.IdentityID, true); err != nil {
				return err
			}
		}
		log.Info().Str("circle_id", circle.CircleID.String()).Msg("Circle completed")
		return nil
	}
	return tx.Save(circle).Error
}

func activeCircle(tx *gorm.DB, circleID uuid.UUID) (*domain.Circle, error) {
	var circle domain.Circle
	if err := tx.Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCircleNotFound
		}
		return nil, err
	}
	if circle.Status != domain.CircleStatusActive {
		return nil, ErrCircleNotActive
	}
	return &circle, nil
}

func circleMember(tx *gorm.DB, circleID uuid.UUID, identityID string) (*domain.Member, error) {
	var member domain.Member
	if err := tx.Where("circle_id = ? AND identity_id = ?", circleID, identityID).First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotMember
		}
		return nil, err
	}
	return &member, nil
}

// withinRoundWindow reports whether now falls before the round's deadline
// (start + (round+1)*duration + grace).
func withinRoundWindow(circle *domain.Circle, round int, now time.Time) bool {
	if circle.StartedAt == nil {
		return true
	}
	deadline := circle.StartedAt.
		Add(time.Duration(int64(round+1)*circle.RoundDurationSecs) * time.Second).
		Add(time.Duration(circle.GracePeriodSecs) * time.Second)
	return !now.After(deadline)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
