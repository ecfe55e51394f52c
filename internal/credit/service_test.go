package credit

import (
	"context"
	"testing"
	"time"

	"kolo-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCreditTest(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CreditProfile{}, &domain.CreditActivity{}))
	return &Service{DB: db}
}

func TestProfile_NoActivityStartsAtBase(t *testing.T) {
	s := setupCreditTest(t)
	profile, err := s.Profile(context.Background(), domain.NewIdentityHandle())
	require.NoError(t, err)
	assert.Equal(t, MinScore, profile.Score)
	assert.Equal(t, 0, profile.TotalPayments)
}

func TestRecordPayment_CountersAndScore(t *testing.T) {
	s := setupCreditTest(t)
	ctx := context.Background()
	identity := domain.NewIdentityHandle()
	circleID := uuid.New()

	profile, err := s.RecordPayment(ctx, identity, circleID, 0, 100, true)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.TotalPayments)
	assert.Equal(t, 1, profile.OnTimePayments)
	assert.Equal(t, 0, profile.LatePayments)
	assert.Equal(t, 100.0, profile.TotalVolume)
	assert.Equal(t, 1, profile.CirclesPaidInto)
	assert.Greater(t, profile.Score, MinScore)

	profile, err = s.RecordPayment(ctx, identity, circleID, 1, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.TotalPayments)
	assert.Equal(t, 1, profile.LatePayments)
	// same circle does not bump diversity
	assert.Equal(t, 1, profile.CirclesPaidInto)

	profile, err = s.RecordPayment(ctx, identity, uuid.New(), 0, 50, true)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.CirclesPaidInto)
}

// CirclesPaidInto counts distinct circles, not circle switches: alternating
// payments between two circles must stay at 2.
func TestRecordPayment_DiversityIsDistinctCircles(t *testing.T) {
	s := setupCreditTest(t)
	ctx := context.Background()
	identity := domain.NewIdentityHandle()
	circleA := uuid.New()
	circleB := uuid.New()

	var profile *domain.CreditProfile
	var err error
	for round := 0; round < 3; round++ {
		profile, err = s.RecordPayment(ctx, identity, circleA, round, 10, true)
		require.NoError(t, err)
		profile, err = s.RecordPayment(ctx, identity, circleB, round, 10, true)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, profile.CirclesPaidInto)
	assert.Equal(t, 6, profile.TotalPayments)
}

func TestRecordPayment_InvalidAmount(t *testing.T) {
	s := setupCreditTest(t)
	_, err := s.RecordPayment(context.Background(), domain.NewIdentityHandle(), uuid.New(), 0, 0, true)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidAmount, err)
}

func TestRecordCompletion(t *testing.T) {
	s := setupCreditTest(t)
	ctx := context.Background()
	identity := domain.NewIdentityHandle()

	profile, err := s.RecordCompletion(ctx, identity, true)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.CirclesCompleted)

	profile, err = s.RecordCompletion(ctx, identity, false)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.CirclesDefaulted)
}

// Score must be re-derivable from the stored counters alone.
func TestScore_RederivableFromCounters(t *testing.T) {
	s := setupCreditTest(t)
	ctx := context.Background()
	identity := domain.NewIdentityHandle()

	_, err := s.RecordPayment(ctx, identity, uuid.New(), 0, 250, true)
	require.NoError(t, err)
	_, err = s.RecordCompletion(ctx, identity, true)
	require.NoError(t, err)

	stored, err := s.Profile(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, stored.Score, ComputeScore(stored, stored.LastUpdatedAt))

	// Re-reading without new activity yields the same value.
	again, err := s.Profile(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, stored.Score, again.Score)
}

func TestComputeScore_ClampedAndWeighted(t *testing.T) {
	now := time.Now()
	first := now.Add(-3 * 365 * 24 * time.Hour)
	perfect := &domain.CreditProfile{
		TotalPayments:    100,
		OnTimePayments:   100,
		CirclesCompleted: 10,
		CirclesPaidInto:  10,
		TotalVolume:      100000,
		FirstActivityAt:  &first,
	}
	assert.Equal(t, MaxScore, ComputeScore(perfect, now))

	empty := &domain.CreditProfile{}
	assert.Equal(t, MinScore, ComputeScore(empty, now))

	allLate := &domain.CreditProfile{
		TotalPayments: 10,
		LatePayments:  10,
	}
	assert.Equal(t, MinScore, ComputeScore(allLate, now))
}
