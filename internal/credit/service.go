package credit

import (
	"context"
	"math"
	"time"

	"kolo-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the credit accumulator. Counters only grow; the score is
// recomputed from them on every write.
type Service struct {
	DB *gorm.DB
}

// Profile returns the identity's credit profile. Identities with no recorded
// activity get a fresh unpersisted profile at the base score.
func (s *Service) Profile(ctx context.Context, identityID string) (*domain.CreditProfile, error) {
	var profile domain.CreditProfile
	err := s.DB.WithContext(ctx).Where("identity_id = ?", identityID).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return &domain.CreditProfile{IdentityID: identityID, Score: MinScore}, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// RecordPayment folds one contribution or repayment into the profile.
func (s *Service) RecordPayment(ctx context.Context, identityID string, circleID uuid.UUID, round int, amount float64, onTime bool) (*domain.CreditProfile, error) {
	var profile *domain.CreditProfile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		profile, err = s.RecordPaymentTx(tx, identityID, circleID, round, amount, onTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// RecordPaymentTx is RecordPayment inside a caller-owned transaction, used by
// round settlement so credit updates commit with the settlement write.
func (s *Service) RecordPaymentTx(tx *gorm.DB, identityID string, circleID uuid.UUID, round int, amount float64, onTime bool) (*domain.CreditProfile, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	profile, err := getOrCreateProfile(tx, identityID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	profile.TotalPayments++
	if onTime {
		profile.OnTimePayments++
	} else {
		profile.LatePayments++
	}
	profile.TotalVolume = math.Round((profile.TotalVolume+amount)*100) / 100

	activity := domain.CreditActivity{IdentityID: identityID, CircleID: circleID}
	if err := tx.Where("identity_id = ? AND circle_id = ?", identityID, circleID).
		FirstOrCreate(&activity).Error; err != nil {
		return nil, err
	}
	var distinct int64
	if err := tx.Model(&domain.CreditActivity{}).
		Where("identity_id = ?", identityID).Count(&distinct).Error; err != nil {
		return nil, err
	}
	profile.CirclesPaidInto = int(distinct)

	if profile.FirstActivityAt == nil {
		profile.FirstActivityAt = &now
	}
	profile.Score = ComputeScore(profile, now)
	profile.LastUpdatedAt = now

	if err := tx.Save(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

// RecordCompletion folds a finished circle outcome into the profile.
func (s *Service) RecordCompletion(ctx context.Context, identityID string, success bool) (*domain.CreditProfile, error) {
	var profile *domain.CreditProfile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		profile, err = s.RecordCompletionTx(tx, identityID, success)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// RecordCompletionTx is RecordCompletion inside a caller-owned transaction.
func (s *Service) RecordCompletionTx(tx *gorm.DB, identityID string, success bool) (*domain.CreditProfile, error) {
	profile, err := getOrCreateProfile(tx, identityID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if success {
		profile.CirclesCompleted++
	} else {
		profile.CirclesDefaulted++
	}
	if profile.FirstActivityAt == nil {
		profile.FirstActivityAt = &now
	}
	profile.Score = ComputeScore(profile, now)
	profile.LastUpdatedAt = now

	if err := tx.Save(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

func getOrCreateProfile(tx *gorm.DB, identityID string) (*domain.CreditProfile, error) {
	var profile domain.CreditProfile
	err := tx.Where("identity_id = ?", identityID).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		profile = domain.CreditProfile{IdentityID: identityID, Score: MinScore}
		if err := tx.Create(&profile).Error; err != nil {
			return nil, err
		}
		return &profile, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
