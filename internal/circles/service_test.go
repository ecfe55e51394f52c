package circles

import (
	"context"
	"testing"
	"time"

	"kolo-backend/internal/collateral"
	"kolo-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCircleTest(t *testing.T) (*Service, *collateral.Service) {
	// A plain ":memory:" DSN gives each pooled connection its own empty
	// database; a named shared-cache DSN keeps the schema visible to the
	// second connection used for oracle reads during transactions.
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Circle{}, &domain.Member{}, &domain.CircleEvent{},
		&domain.CollateralAccount{}, &domain.Commitment{}, &domain.AssetPrice{},
	))
	oracle := &collateral.GormPriceOracle{DB: db}
	require.NoError(t, oracle.SetPrice(context.Background(), "USDC", decimal.NewFromInt(1), 6))
	ledger := collateral.NewService(db, oracle, 0.80)
	return &Service{DB: db, Collateral: ledger}, ledger
}

func fundWallet(t *testing.T, ledger *collateral.Service, wallet string, amount float64) {
	_, err := ledger.Deposit(context.Background(), wallet, "USDC", amount)
	require.NoError(t, err)
}

func baseParams(creator, wallet string) CreateParams {
	return CreateParams{
		CreatorID:          creator,
		CreatorWallet:      wallet,
		Name:               "friday savings",
		PayoutMode:         domain.PayoutModeFixed,
		ContributionAmount: 10,
		TotalMembers:       3,
		RoundDuration:      7 * 24 * time.Hour,
		GracePeriod:        24 * time.Hour,
		Asset:              "USDC",
	}
}

func TestCreate_InvalidParams(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 1000)

	cases := []func(*CreateParams){
		func(p *CreateParams) { p.TotalMembers = 2 },
		func(p *CreateParams) { p.TotalMembers = 11 },
		func(p *CreateParams) { p.ContributionAmount = 0 },
		func(p *CreateParams) { p.RoundDuration = time.Hour },
		func(p *CreateParams) { p.RoundDuration = 120 * 24 * time.Hour },
		func(p *CreateParams) { p.GracePeriod = 10 * 24 * time.Hour },
		func(p *CreateParams) { p.PayoutMode = "raffle" },
		func(p *CreateParams) { w := time.Hour; p.BidWindow = &w },
	}
	for _, mutate := range cases {
		params := baseParams(creator, "0xcreator")
		mutate(&params)
		_, err := s.Create(ctx, params)
		require.Error(t, err)
		assert.Equal(t, ErrInvalidParams, err)
	}
}

func TestCreate_LocksCreatorCollateralAtomically(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	circle, err := s.Create(ctx, baseParams(creator, "0xcreator"))
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusPendingCreation, circle.Status)

	// pro-rata share of a 30 USDC pool at $1 = 10
	capacity, err := ledger.AvailableCapacity(ctx, "0xcreator")
	require.NoError(t, err)
	assert.Equal(t, 70.0, capacity)

	var member domain.Member
	require.NoError(t, s.DB.Where("circle_id = ?", circle.CircleID).First(&member).Error)
	require.NotNil(t, member.Position)
	assert.Equal(t, 1, *member.Position)
}

func TestCreate_InsufficientCapacityRollsBack(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xpoor", 5)

	_, err := s.Create(ctx, baseParams(creator, "0xpoor"))
	require.Error(t, err)
	assert.Equal(t, collateral.ErrInsufficientCapacity, err)

	// nothing persisted: no circle, no member
	var circleCount, memberCount int64
	s.DB.Model(&domain.Circle{}).Count(&circleCount)
	s.DB.Model(&domain.Member{}).Count(&memberCount)
	assert.Equal(t, int64(0), circleCount)
	assert.Equal(t, int64(0), memberCount)
}

func TestJoin_FillsAndActivatesExactlyOnce(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	circle, err := s.Create(ctx, baseParams(creator, "0xcreator"))
	require.NoError(t, err)

	second := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xsecond", 100)
	got, err := s.Join(ctx, circle.CircleID, second, "0xsecond")
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusPendingCreation, got.Status)
	assert.Nil(t, got.StartedAt)

	third := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xthird", 100)
	got, err = s.Join(ctx, circle.CircleID, third, "0xthird")
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusActive, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, 0, got.CurrentRound)

	// full circle rejects further joiners
	fourth := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xfourth", 100)
	_, err = s.Join(ctx, circle.CircleID, fourth, "0xfourth")
	require.Error(t, err)
	assert.Equal(t, ErrCircleNotAccepting, err)

	// exactly one activation event
	var activations int64
	s.DB.Model(&domain.CircleEvent{}).
		Where("circle_id = ? AND event_type = ?", circle.CircleID, "ACTIVATED").Count(&activations)
	assert.Equal(t, int64(1), activations)
}

func TestJoin_Errors(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	_, err := s.Join(ctx, uuid.New(), domain.NewIdentityHandle(), "0xw")
	assert.Equal(t, ErrCircleNotFound, err)

	circle, err := s.Create(ctx, baseParams(creator, "0xcreator"))
	require.NoError(t, err)

	_, err = s.Join(ctx, circle.CircleID, creator, "0xcreator")
	assert.Equal(t, ErrAlreadyMember, err)

	_, err = s.Join(ctx, circle.CircleID, domain.NewIdentityHandle(), "0xbroke")
	assert.Equal(t, collateral.ErrNoDeposit, err)
}

func TestPauseResume_Transitions(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	circle, err := s.Create(ctx, baseParams(creator, "0xcreator"))
	require.NoError(t, err)

	// not active yet
	_, err = s.Pause(ctx, circle.CircleID)
	assert.Equal(t, ErrInvalidTransition, err)
	_, err = s.Resume(ctx, circle.CircleID)
	assert.Equal(t, ErrInvalidTransition, err)

	for _, w := range []string{"0xsecond", "0xthird"} {
		fundWallet(t, ledger, w, 100)
		_, err = s.Join(ctx, circle.CircleID, domain.NewIdentityHandle(), w)
		require.NoError(t, err)
	}

	paused, err := s.Pause(ctx, circle.CircleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusPaused, paused.Status)

	resumed, err := s.Resume(ctx, circle.CircleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusActive, resumed.Status)
}

func TestMarkBroadcast(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	circle, err := s.Create(ctx, baseParams(creator, "0xcreator"))
	require.NoError(t, err)

	forming, err := s.MarkBroadcast(ctx, circle.CircleID, "kolo1circleaddr")
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusForming, forming.Status)
	require.NotNil(t, forming.ChainAddress)

	_, err = s.MarkBroadcast(ctx, circle.CircleID, "kolo1other")
	assert.Equal(t, ErrInvalidTransition, err)
}

func TestDissolve_ReleasesCommitments(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	circle, err := s.Create(ctx, baseParams(creator, "0xcreator"))
	require.NoError(t, err)

	dissolved, err := s.Dissolve(ctx, circle.CircleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CircleStatusDissolved, dissolved.Status)

	capacity, err := ledger.AvailableCapacity(ctx, "0xcreator")
	require.NoError(t, err)
	assert.Equal(t, 80.0, capacity)

	_, err = s.Dissolve(ctx, circle.CircleID)
	assert.Equal(t, ErrInvalidTransition, err)
}

func TestAuctionCircle_MembersUnordered(t *testing.T) {
	s, ledger := setupCircleTest(t)
	ctx := context.Background()
	creator := domain.NewIdentityHandle()
	fundWallet(t, ledger, "0xcreator", 100)

	params := baseParams(creator, "0xcreator")
	params.PayoutMode = domain.PayoutModeAuction
	window := 12 * time.Hour
	params.BidWindow = &window

	circle, err := s.Create(ctx, params)
	require.NoError(t, err)

	members, err := s.Members(ctx, circle.CircleID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Nil(t, members[0].Position)
}
