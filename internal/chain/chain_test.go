package chain

import (
	"context"
	"sync"
	"testing"
	"time"

	"kolo-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClient struct {
	state       *CircleState
	stateErr    error
	onStateRead func()
	statuses    []string
	calls       int
}

func (f *fakeClient) CircleState(ctx context.Context, circleID string) (*CircleState, error) {
	if f.onStateRead != nil {
		f.onStateRead()
	}
	return f.state, f.stateErr
}

func (f *fakeClient) Submit(ctx context.Context, op Operation) (string, error) {
	return "tx-1", nil
}

func (f *fakeClient) TxStatus(ctx context.Context, txID string) (string, error) {
	status := f.statuses[f.calls]
	if f.calls < len(f.statuses)-1 {
		f.calls++
	}
	return status, nil
}

func TestMutexSequencer_StrictlyIncreasing(t *testing.T) {
	seq := NewMutexSequencer(7)
	ctx := context.Background()

	first, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), first)

	var mu sync.Mutex
	seen := map[uint64]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx)
			assert.NoError(t, err)
			mu.Lock()
			assert.False(t, seen[n])
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestMutexSequencer_CancelledContext(t *testing.T) {
	seq := NewMutexSequencer(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := seq.Next(ctx)
	require.Error(t, err)
}

func TestWaitForTx_ReachesTerminal(t *testing.T) {
	client := &fakeClient{statuses: []string{TxStatusPending, TxStatusPending, TxStatusSuccess}}
	status, err := WaitForTx(context.Background(), client, "tx-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TxStatusSuccess, status)
}

func TestWaitForTx_ContextTimeout(t *testing.T) {
	client := &fakeClient{statuses: []string{TxStatusPending}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WaitForTx(ctx, client, "tx-1", 5*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func setupSyncTest(t *testing.T) (*SyncService, *fakeClient, *domain.Circle) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Circle{}, &domain.Member{}, &domain.Commitment{}))

	circle := &domain.Circle{
		CreatorID:          domain.NewIdentityHandle(),
		Name:               "sync test",
		PayoutMode:         domain.PayoutModeFixed,
		ContributionAmount: 10,
		TotalMembers:       3,
		RoundDurationSecs:  86400,
		Asset:              "USDC",
		Status:             domain.CircleStatusActive,
		CurrentRound:       1,
	}
	require.NoError(t, db.Create(circle).Error)

	client := &fakeClient{}
	return &SyncService{DB: db, Client: client}, client, circle
}

func TestSyncCircle_UpdatesMirrorFieldsOnly(t *testing.T) {
	svc, client, circle := setupSyncTest(t)
	client.state = &CircleState{Status: "completed", CurrentRound: 3}

	result, err := svc.SyncCircle(context.Background(), circle.CircleID)
	require.NoError(t, err)
	assert.True(t, result.StatusChanged)
	assert.True(t, result.RoundChanged)

	var got domain.Circle
	require.NoError(t, svc.DB.Where("circle_id = ?", circle.CircleID).First(&got).Error)
	assert.Equal(t, domain.CircleStatusCompleted, got.Status)
	assert.Equal(t, 3, got.CurrentRound)
}

func TestSyncCircle_RoundNeverMovesBackward(t *testing.T) {
	svc, client, circle := setupSyncTest(t)
	client.state = &CircleState{Status: "active", CurrentRound: 0}

	result, err := svc.SyncCircle(context.Background(), circle.CircleID)
	require.NoError(t, err)
	assert.False(t, result.RoundChanged)
	assert.Equal(t, 1, result.CurrentRound)
}

// A settlement can commit between the sync's read and its write. The chain
// round was ahead of the row at read time but behind it by write time; the
// guarded update must leave the newer local round in place.
func TestSyncCircle_ConcurrentSettlementWins(t *testing.T) {
	svc, client, circle := setupSyncTest(t)
	client.state = &CircleState{Status: "active", CurrentRound: 2}
	client.onStateRead = func() {
		require.NoError(t, svc.DB.Model(&domain.Circle{}).
			Where("circle_id = ?", circle.CircleID).
			Update("current_round", 3).Error)
	}

	result, err := svc.SyncCircle(context.Background(), circle.CircleID)
	require.NoError(t, err)
	assert.False(t, result.RoundChanged)
	assert.Equal(t, 3, result.CurrentRound)

	var got domain.Circle
	require.NoError(t, svc.DB.Where("circle_id = ?", circle.CircleID).First(&got).Error)
	assert.Equal(t, 3, got.CurrentRound)
}

func TestSyncCircle_UnknownChainStatusIgnored(t *testing.T) {
	svc, client, circle := setupSyncTest(t)
	client.state = &CircleState{Status: "finalizing", CurrentRound: 1}

	result, err := svc.SyncCircle(context.Background(), circle.CircleID)
	require.NoError(t, err)
	assert.False(t, result.StatusChanged)
	assert.Equal(t, domain.CircleStatusActive, result.Status)
}
