package chain

import (
	"context"

	"kolo-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SyncService reconciles the local mirror with committed ledger facts. It
// updates only the circle's status and current_round; membership and
// commitments stay locally authoritative between syncs.
type SyncService struct {
	DB     *gorm.DB
	Client Client
}

// SyncResult reports what a reconciliation pass changed.
type SyncResult struct {
	CircleID      uuid.UUID `json:"circle_id"`
	StatusChanged bool      `json:"status_changed"`
	RoundChanged  bool      `json:"round_changed"`
	Status        string    `json:"status"`
	CurrentRound  int       `json:"current_round"`
}

// SyncCircle pulls the on-chain state for one circle and folds it into the
// local row. The round only ever moves forward; an on-chain round behind the
// local one is ignored.
func (s *SyncService) SyncCircle(ctx context.Context, circleID uuid.UUID) (*SyncResult, error) {
	var circle domain.Circle
	if err := s.DB.WithContext(ctx).Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
		return nil, err
	}

	ref := circleID.String()
	if circle.ChainAddress != nil {
		ref = *circle.ChainAddress
	}
	state, err := s.Client.CircleState(ctx, ref)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{CircleID: circleID}

	// Guarded writes: a settlement may commit between the read above and
	// these updates, so the round condition is re-checked in the WHERE and
	// the row count decides what actually changed.
	if status, ok := mapChainStatus(state.Status); ok && status != circle.Status {
		res := s.DB.WithContext(ctx).Model(&domain.Circle{}).
			Where("circle_id = ? AND status = ?", circleID, circle.Status).
			Update("status", status)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			result.StatusChanged = true
			circle.Status = status
		}
	}
	if state.CurrentRound > circle.CurrentRound {
		res := s.DB.WithContext(ctx).Model(&domain.Circle{}).
			Where("circle_id = ? AND current_round < ?", circleID, state.CurrentRound).
			Update("current_round", state.CurrentRound)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			result.RoundChanged = true
			circle.CurrentRound = state.CurrentRound
		}
	}

	if result.StatusChanged || result.RoundChanged {
		log.Info().Str("circle_id", circleID.String()).
			Bool("status_changed", result.StatusChanged).
			Bool("round_changed", result.RoundChanged).Msg("Circle synced from chain")
	}

	if err := s.DB.WithContext(ctx).Where("circle_id = ?", circleID).First(&circle).Error; err != nil {
		return nil, err
	}
	result.Status = circle.Status
	result.CurrentRound = circle.CurrentRound
	return result, nil
}

func mapChainStatus(chainStatus string) (string, bool) {
	switch chainStatus {
	case "forming":
		return domain.CircleStatusForming, true
	case "active":
		return domain.CircleStatusActive, true
	case "completed":
		return domain.CircleStatusCompleted, true
	case "paused":
		return domain.CircleStatusPaused, true
	case "dissolved":
		return domain.CircleStatusDissolved, true
	default:
		return "", false
	}
}
