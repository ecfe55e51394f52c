package credit

import (
	"math"
	"time"

	"kolo-backend/internal/domain"
)

// Score bounds and composite weights. The score is a pure function of the
// persisted counters; no incremental-only state feeds it.
const (
	MinScore = 300
	MaxScore = 850

	weightPaymentHistory = 0.35
	weightCompletion     = 0.25
	weightTenure         = 0.15
	weightVolume         = 0.15
	weightDiversity      = 0.10

	// Saturation points for the open-ended factors.
	tenureFullMonths  = 24.0
	volumeFullUSD     = 50000.0
	diversityFullSize = 5.0
)

// ComputeScore derives the composite score from a profile's counters, clamped
// to [300, 850]. now anchors the tenure factor.
func ComputeScore(p *domain.CreditProfile, now time.Time) int {
	var paymentHistory float64
	if p.TotalPayments > 0 {
		paymentHistory = float64(p.OnTimePayments) / float64(p.TotalPayments)
	}

	var completion float64
	if finished := p.CirclesCompleted + p.CirclesDefaulted; finished > 0 {
		completion = float64(p.CirclesCompleted) / float64(finished)
	}

	var tenure float64
	if p.FirstActivityAt != nil {
		months := now.Sub(*p.FirstActivityAt).Hours() / (24 * 30)
		tenure = math.Min(1, months/tenureFullMonths)
	}

	volume := math.Min(1, p.TotalVolume/volumeFullUSD)
	diversity := math.Min(1, float64(p.CirclesPaidInto)/diversityFullSize)

	composite := weightPaymentHistory*paymentHistory +
		weightCompletion*completion +
		weightTenure*tenure +
		weightVolume*volume +
		weightDiversity*diversity

	score := MinScore + int(math.Round(composite*float64(MaxScore-MinScore)))
	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	return score
}
