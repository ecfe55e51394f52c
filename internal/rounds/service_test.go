package rounds

import (
	"context"
	"testing"
	"time"

	"kolo-backend/internal/circles"
	"kolo-backend/internal/collateral"
	"kolo-backend/internal/credit"
	"kolo-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	rounds  *Service
	circles *circles.Service
	ledger  *collateral.Service
}

func setupRoundsTest(t *testing.T) *fixture {
	// A plain ":memory:" DSN gives each pooled connection its own empty
	// database; a named shared-cache DSN keeps the schema visible to the
	// second connection used for oracle reads during transactions.
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Circle{}, &domain.Member{}, &domain.CircleEvent{},
		&domain.Contribution{}, &domain.Bid{}, &domain.RoundResult{}, &domain.Repayment{},
		&domain.CollateralAccount{}, &domain.Commitment{}, &domain.AssetPrice{},
		&domain.CreditProfile{},
		&domain.CreditActivity{},
	))
	oracle := &collateral.GormPriceOracle{DB: db}
	require.NoError(t, oracle.SetPrice(context.Background(), "USDC", decimal.NewFromInt(1), 6))
	ledger := collateral.NewService(db, oracle, 0.80)
	creditSvc := &credit.Service{DB: db}
	return &fixture{
		rounds:  &Service{DB: db, Collateral: ledger, Credit: creditSvc},
		circles: &circles.Service{DB: db, Collateral: ledger},
		ledger:  ledger,
	}
}

type testMember struct {
	identity string
	wallet   string
}

// activeCircleWith creates and fills a circle of len(members), funding each
// wallet with 100 USDC first.
func (f *fixture) activeCircleWith(t *testing.T, mode string, contribution float64, members []testMember) *domain.Circle {
	ctx := context.Background()
	for _, m := range members {
		_, err := f.ledger.Deposit(ctx, m.wallet, "USDC", 100)
		require.NoError(t, err)
	}
	params := circles.CreateParams{
		CreatorID:          members[0].identity,
		CreatorWallet:      members[0].wallet,
		Name:               "test circle",
		PayoutMode:         mode,
		ContributionAmount: contribution,
		TotalMembers:       len(members),
		RoundDuration:      7 * 24 * time.Hour,
		GracePeriod:        24 * time.Hour,
		Asset:              "USDC",
	}
	circle, err := f.circles.Create(ctx, params)
	require.NoError(t, err)
	for _, m := range members[1:] {
		_, err := f.circles.Join(ctx, circle.CircleID, m.identity, m.wallet)
		require.NoError(t, err)
	}
	got, err := f.circles.Get(ctx, circle.CircleID)
	require.NoError(t, err)
	require.Equal(t, domain.CircleStatusActive, got.Status)
	return got
}

func threeMembers() []testMember {
	return []testMember{
		{domain.NewIdentityHandle(), "0xalice"},
		{domain.NewIdentityHandle(), "0xbob"},
		{domain.NewIdentityHandle(), "0xcarol"},
	}
}

func TestContribute_UniquePerRound(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeFixed, 10, members)

	_, err := f.rounds.Contribute(ctx, circle.CircleID, members[0].identity, 10)
	require.NoError(t, err)

	_, err = f.rounds.Contribute(ctx, circle.CircleID, members[0].identity, 10)
	require.Error(t, err)
	assert.Equal(t, ErrAlreadyContributed, err)
}

func TestContribute_Errors(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeFixed, 10, members)

	_, err := f.rounds.Contribute(ctx, circle.CircleID, members[0].identity, 7)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = f.rounds.Contribute(ctx, circle.CircleID, domain.NewIdentityHandle(), 10)
	assert.Equal(t, ErrNotMember, err)
}

// Fixed-order scenario: three members, 10-unit contributions, three rounds of
// contribute-all then payout → circle completed and all commitments released.
func TestFixedOrder_FullLifecycle(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()

	preLock := make(map[string]float64)
	circle := f.activeCircleWith(t, domain.PayoutModeFixed, 10, members)
	for _, m := range members {
		preLock[m.wallet] = 80.0 // 100 deposited at 80% LTV
	}

	for round := 0; round < 3; round++ {
		// payout before contributions is rejected
		_, err := f.rounds.ProcessPayout(ctx, circle.CircleID)
		require.Error(t, err)
		assert.Equal(t, ErrContributionsIncomplete, err)

		for _, m := range members {
			_, err := f.rounds.Contribute(ctx, circle.CircleID, m.identity, 10)
			require.NoError(t, err)
		}

		result, err := f.rounds.ProcessPayout(ctx, circle.CircleID)
		require.NoError(t, err)
		assert.Equal(t, round, result.Round)
		assert.Equal(t, 30.0, result.PoolTotal)
		assert.Equal(t, members[round].identity, result.WinnerIdentity)

		got, err := f.circles.Get(ctx, circle.CircleID)
		require.NoError(t, err)
		assert.Equal(t, round+1, got.CurrentRound)
	}

	got, err := f.circles.Get(ctx, circle.CircleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusCompleted, got.Status)

	// commitments released: capacity back to pre-lock levels
	for _, m := range members {
		capacity, err := f.ledger.AvailableCapacity(ctx, m.wallet)
		require.NoError(t, err)
		assert.Equal(t, preLock[m.wallet], capacity)
	}

	// completed circle accepts no further writes
	_, err = f.rounds.Contribute(ctx, circle.CircleID, members[0].identity, 10)
	assert.Equal(t, ErrCircleNotActive, err)
	_, err = f.rounds.ProcessPayout(ctx, circle.CircleID)
	assert.Equal(t, ErrCircleNotActive, err)
}

func TestPlaceBid_Rules(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeAuction, 10, members)

	// must contribute before bidding
	_, err := f.rounds.PlaceBid(ctx, circle.CircleID, members[0].identity, 8_000_000)
	assert.Equal(t, ErrContributionRequired, err)

	_, err = f.rounds.Contribute(ctx, circle.CircleID, members[0].identity, 10)
	require.NoError(t, err)

	_, err = f.rounds.PlaceBid(ctx, circle.CircleID, members[0].identity, 0)
	assert.Equal(t, ErrInvalidBid, err)

	_, err = f.rounds.PlaceBid(ctx, circle.CircleID, members[0].identity, 8_000_000)
	require.NoError(t, err)

	// one bid per round
	_, err = f.rounds.PlaceBid(ctx, circle.CircleID, members[0].identity, 7_000_000)
	assert.Equal(t, ErrBidExists, err)
}

// Auction scenario: pool 30, A bids 8, B bids 12; settlement with winner A
// must reject a second settlement for the same round.
func TestSettle_IdempotencyBoundary(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeAuction, 10, members)

	for _, m := range members[:2] {
		_, err := f.rounds.Contribute(ctx, circle.CircleID, m.identity, 10)
		require.NoError(t, err)
	}
	_, err := f.rounds.PlaceBid(ctx, circle.CircleID, members[0].identity, 8_000_000)
	require.NoError(t, err)
	_, err = f.rounds.PlaceBid(ctx, circle.CircleID, members[1].identity, 12_000_000)
	require.NoError(t, err)

	params := SettleParams{
		Round:             0,
		WinnerIdentity:    members[0].identity,
		WinningBidMicro:   8_000_000,
		PoolTotal:         30,
		ProtocolFee:       0.3,
		Surplus:           8,
		DividendPerMember: 4,
	}
	result, err := f.rounds.Settle(ctx, circle.CircleID, params)
	require.NoError(t, err)
	assert.Equal(t, members[0].identity, result.WinnerIdentity)

	_, err = f.rounds.Settle(ctx, circle.CircleID, params)
	require.Error(t, err)
	assert.Equal(t, ErrRoundAlreadySettled, err)

	// winner marked; cannot win twice
	var winner domain.Member
	require.NoError(t, f.rounds.DB.Where("circle_id = ? AND identity_id = ?", circle.CircleID, members[0].identity).First(&winner).Error)
	assert.True(t, winner.HasWon)
	require.NotNil(t, winner.WonRound)
	assert.Equal(t, 0, *winner.WonRound)

	params2 := params
	params2.Round = 1
	_, err = f.rounds.Settle(ctx, circle.CircleID, params2)
	assert.Equal(t, ErrAlreadyWon, err)
}

func TestSettle_RoundOrdering(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeAuction, 10, members)

	// settling a future round is rejected; current_round never skips
	_, err := f.rounds.Settle(ctx, circle.CircleID, SettleParams{
		Round:          2,
		WinnerIdentity: members[0].identity,
		PoolTotal:      30,
	})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidRound, err)
}

func TestSettle_CompletesCircleOnFinalRound(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeAuction, 10, members)

	for round := 0; round < 3; round++ {
		_, err := f.rounds.Settle(ctx, circle.CircleID, SettleParams{
			Round:          round,
			WinnerIdentity: members[round].identity,
			PoolTotal:      30,
		})
		require.NoError(t, err)
	}

	got, err := f.circles.Get(ctx, circle.CircleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusCompleted, got.Status)
	assert.Equal(t, 3, got.CurrentRound)

	for _, m := range members {
		capacity, err := f.ledger.AvailableCapacity(ctx, m.wallet)
		require.NoError(t, err)
		assert.Equal(t, 80.0, capacity)
	}
}

func TestRepay_UpsertsInstallments(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeAuction, 10, members)

	// non-winner cannot repay
	_, err := f.rounds.Repay(ctx, circle.CircleID, members[1].identity, 1, 11, 11, true)
	assert.Equal(t, ErrNotWinner, err)

	_, err = f.rounds.Settle(ctx, circle.CircleID, SettleParams{
		Round:          0,
		WinnerIdentity: members[0].identity,
		PoolTotal:      30,
	})
	require.NoError(t, err)

	repayment, err := f.rounds.Repay(ctx, circle.CircleID, members[0].identity, 1, 11, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 5.0, repayment.AmountPaid)

	repayment, err = f.rounds.Repay(ctx, circle.CircleID, members[0].identity, 1, 11, 6, false)
	require.NoError(t, err)
	assert.Equal(t, 11.0, repayment.AmountPaid)
	assert.False(t, repayment.OnTime)

	var member domain.Member
	require.NoError(t, f.rounds.DB.Where("circle_id = ? AND identity_id = ?", circle.CircleID, members[0].identity).First(&member).Error)
	assert.Equal(t, 11.0, member.TotalRepaid)
}

func TestStatus_CountsCurrentRound(t *testing.T) {
	f := setupRoundsTest(t)
	ctx := context.Background()
	members := threeMembers()
	circle := f.activeCircleWith(t, domain.PayoutModeAuction, 10, members)

	_, err := f.rounds.Contribute(ctx, circle.CircleID, members[0].identity, 10)
	require.NoError(t, err)
	_, err = f.rounds.PlaceBid(ctx, circle.CircleID, members[0].identity, 9_000_000)
	require.NoError(t, err)

	status, err := f.rounds.Status(ctx, circle.CircleID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CurrentRound)
	assert.Equal(t, int64(1), status.Contributions)
	assert.Equal(t, int64(1), status.Bids)
	assert.Equal(t, 3, status.TotalMembers)
}
