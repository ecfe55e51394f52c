package circles

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"kolo-backend/internal/collateral"
	"kolo-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Circle parameter policy bounds.
const (
	MinMembers       = 3
	MaxMembers       = 10
	MinRoundDuration = 24 * time.Hour
	MaxRoundDuration = 90 * 24 * time.Hour
)

// Service owns circle identity, membership and lifecycle. Collateral locks
// happen inside the same transaction as the circle write they authorize.
type Service struct {
	DB         *gorm.DB
	Collateral *collateral.Service
}

// CreateParams are the immutable economic parameters of a circle.
type CreateParams struct {
	CreatorID          string
	CreatorWallet      string
	Name               string
	PayoutMode         string
	ContributionAmount float64
	TotalMembers       int
	RoundDuration      time.Duration
	GracePeriod        time.Duration
	BidWindow          *time.Duration
	Asset              string
}

func (p CreateParams) validate() error {
	if p.TotalMembers < MinMembers || p.TotalMembers > MaxMembers {
		return ErrInvalidParams
	}
	if p.ContributionAmount <= 0 {
		return ErrInvalidParams
	}
	if p.RoundDuration < MinRoundDuration || p.RoundDuration > MaxRoundDuration {
		return ErrInvalidParams
	}
	if p.GracePeriod < 0 || p.GracePeriod > p.RoundDuration {
		return ErrInvalidParams
	}
	if p.PayoutMode != domain.PayoutModeFixed && p.PayoutMode != domain.PayoutModeAuction {
		return ErrInvalidParams
	}
	if p.BidWindow != nil && p.PayoutMode != domain.PayoutModeAuction {
		return ErrInvalidParams
	}
	if p.CreatorID == "" || p.CreatorWallet == "" || p.Asset == "" {
		return ErrInvalidParams
	}
	return nil
}

// Create validates params, locks the creator's pro-rata collateral and writes
// the circle plus its first member. Lock and circle creation are atomic.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Circle, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	share, err := s.memberShareUSD(ctx, params.Asset, params.ContributionAmount, params.TotalMembers)
	if err != nil {
		return nil, err
	}

	var circle domain.Circle
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle = domain.Circle{
			CreatorID:          params.CreatorID,
			Name:               params.Name,
			PayoutMode:         params.PayoutMode,
			ContributionAmount: params.ContributionAmount,
			TotalMembers:       params.TotalMembers,
			RoundDurationSecs:  int64(params.RoundDuration.Seconds()),
			GracePeriodSecs:    int64(params.GracePeriod.Seconds()),
			Asset:              params.Asset,
			Status:             domain.CircleStatusPendingCreation,
		}
		if params.BidWindow != nil {
			secs := int64(params.BidWindow.Seconds())
			circle.BidWindowSecs = &secs
		}
		if err := tx.Create(&circle).Error; err != nil {
			return err
		}

		if _, err := s.Collateral.LockTx(tx, params.CreatorWallet, circle.CircleID, share); err != nil {
			return err
		}

		member := domain.Member{
			CircleID:   circle.CircleID,
			IdentityID: params.CreatorID,
			Wallet:     params.CreatorWallet,
		}
		if params.PayoutMode == domain.PayoutModeFixed {
			pos := 1
			member.Position = &pos
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		return writeEvent(tx, circle.CircleID, "CREATED", params.CreatorID, map[string]interface{}{
			"payout_mode":         circle.PayoutMode,
			"contribution_amount": circle.ContributionAmount,
			"total_members":       circle.TotalMembers,
			"commitment_usd":      share,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("circle_id", circle.CircleID.String()).Str("creator", params.CreatorID).Msg("Circle created")
	return &circle, nil
}

// Join adds an identity to a forming circle, locking its pro-rata collateral.
// Reaching total_members activates the circle inside the same transaction, so
// a circle is never observably full and still forming.
func (s *Service) Join(ctx context.Context, circleID uuid.UUID, identityID, wallet string) (*domain.Circle, error) {
	var circle domain.Circle
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCircleNotFound
			}
			return err
		}
		if !circle.Accepting() {
			return ErrCircleNotAccepting
		}

		var memberCount int64
		if err := tx.Model(&domain.Member{}).Where("circle_id = ?", circleID).Count(&memberCount).Error; err != nil {
			return err
		}
		if int(memberCount) >= circle.TotalMembers {
			return ErrCircleFull
		}

		var existing domain.Member
		err := tx.Where("circle_id = ? AND identity_id = ?", circleID, identityID).First(&existing).Error
		if err == nil {
			return ErrAlreadyMember
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		share, err := s.memberShareUSDTx(tx, circle.Asset, circle.ContributionAmount, circle.TotalMembers)
		if err != nil {
			return err
		}
		if _, err := s.Collateral.LockTx(tx, wallet, circleID, share); err != nil {
			return err
		}

		member := domain.Member{
			CircleID:   circleID,
			IdentityID: identityID,
			Wallet:     wallet,
		}
		if circle.PayoutMode == domain.PayoutModeFixed {
			pos := int(memberCount) + 1
			member.Position = &pos
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		if err := writeEvent(tx, circleID, "JOINED", identityID, map[string]interface{}{
			"member_count":   memberCount + 1,
			"commitment_usd": share,
		}); err != nil {
			return err
		}

		if int(memberCount)+1 == circle.TotalMembers {
			now := time.Now()
			circle.Status = domain.CircleStatusActive
			circle.StartedAt = &now
			circle.CurrentRound = 0
			if err := tx.Save(&circle).Error; err != nil {
				return err
			}
			return writeEvent(tx, circleID, "ACTIVATED", identityID, map[string]interface{}{
				"started_at": now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

// MarkBroadcast records the on-chain address once the creation transaction is
// confirmed, moving the circle from pending_creation to forming.
func (s *Service) MarkBroadcast(ctx context.Context, circleID uuid.UUID, chainAddress string) (*domain.Circle, error) {
	return s.transition(ctx, circleID, func(c *domain.Circle) error {
		if c.Status != domain.CircleStatusPendingCreation {
			return ErrInvalidTransition
		}
		c.Status = domain.CircleStatusForming
		c.ChainAddress = &chainAddress
		return nil
	}, "BROADCAST")
}

// Pause freezes an active circle (admin only, enforced at the boundary).
func (s *Service) Pause(ctx context.Context, circleID uuid.UUID) (*domain.Circle, error) {
	return s.transition(ctx, circleID, func(c *domain.Circle) error {
		if c.Status != domain.CircleStatusActive {
			return ErrInvalidTransition
		}
		c.Status = domain.CircleStatusPaused
		return nil
	}, "PAUSED")
}

// Resume unfreezes a paused circle.
func (s *Service) Resume(ctx context.Context, circleID uuid.UUID) (*domain.Circle, error) {
	return s.transition(ctx, circleID, func(c *domain.Circle) error {
		if c.Status != domain.CircleStatusPaused {
			return ErrInvalidTransition
		}
		c.Status = domain.CircleStatusActive
		return nil
	}, "RESUMED")
}

// Dissolve terminates a circle that has not completed and releases every
// member's commitment. Terminal; admin only.
func (s *Service) Dissolve(ctx context.Context, circleID uuid.UUID) (*domain.Circle, error) {
	var circle domain.Circle
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCircleNotFound
			}
			return err
		}
		if circle.Status == domain.CircleStatusCompleted || circle.Status == domain.CircleStatusDissolved {
			return ErrInvalidTransition
		}

		var members []domain.Member
		if err := tx.Where("circle_id = ?", circleID).Find(&members).Error; err != nil {
			return err
		}
		for _, m := range members {
			if err := s.Collateral.ReleaseTx(tx, m.Wallet, circleID); err != nil && err != collateral.ErrCommitmentNotFound {
				return err
			}
		}

		circle.Status = domain.CircleStatusDissolved
		if err := tx.Save(&circle).Error; err != nil {
			return err
		}
		return writeEvent(tx, circleID, "DISSOLVED", "", nil)
	})
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

// Get returns a circle by id.
func (s *Service) Get(ctx context.Context, circleID uuid.UUID) (*domain.Circle, error) {
	var circle domain.Circle
	if err := s.DB.WithContext(ctx).Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCircleNotFound
		}
		return nil, err
	}
	return &circle, nil
}

// Members returns the circle's membership ordered by payout position.
func (s *Service) Members(ctx context.Context, circleID uuid.UUID) ([]domain.Member, error) {
	var members []domain.Member
	err := s.DB.WithContext(ctx).Where("circle_id = ?", circleID).
		Order("position ASC, createdAt ASC").Find(&members).Error
	return members, err
}

// ListByIdentity returns circles the identity belongs to.
func (s *Service) ListByIdentity(ctx context.Context, identityID string) ([]domain.Circle, error) {
	var out []domain.Circle
	err := s.DB.WithContext(ctx).
		Joins("JOIN Members ON Members.circle_id = Circles.circle_id").
		Where("Members.identity_id = ?", identityID).
		Find(&out).Error
	return out, err
}

func (s *Service) transition(ctx context.Context, circleID uuid.UUID, apply func(*domain.Circle) error, eventType string) (*domain.Circle, error) {
	var circle domain.Circle
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCircleNotFound
			}
			return err
		}
		if err := apply(&circle); err != nil {
			return err
		}
		if err := tx.Save(&circle).Error; err != nil {
			return err
		}
		return writeEvent(tx, circleID, eventType, "", nil)
	})
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

func (s *Service) memberShareUSD(ctx context.Context, asset string, contribution float64, members int) (float64, error) {
	poolUSD, err := s.Collateral.CalculateCommitmentUSD(ctx, asset, contribution, members)
	if err != nil {
		return 0, err
	}
	return math.Round(poolUSD/float64(members)*100) / 100, nil
}

func (s *Service) memberShareUSDTx(tx *gorm.DB, asset string, contribution float64, members int) (float64, error) {
	return s.memberShareUSD(tx.Statement.Context, asset, contribution, members)
}

func writeEvent(tx *gorm.DB, circleID uuid.UUID, eventType, actor string, data map[string]interface{}) error {
	event := domain.CircleEvent{CircleID: circleID, EventType: eventType}
	if actor != "" {
		event.ActorIdentity = &actor
	}
	if data != nil {
		bs, _ := json.Marshal(data)
		event.EventData = datatypes.JSON(bs)
	}
	return tx.Create(&event).Error
}
