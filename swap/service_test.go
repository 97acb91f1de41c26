package swap

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Service_AddAndResume(t *testing.T) {
	db := testDB(t)
	var updates int32
	update := func(a *ActiveSwap) { atomic.AddInt32(&updates, 1) }
	cfg := DefaultConfig(&chaincfg.RegressionNetParams)

	service := NewService(db, &mockWallet{}, cfg, update)
	active, err := service.AddSwap("swap-1", Role{IsInitiator: true, IsBtcOwner: true}, 100000)
	require.NoError(t, err)
	require.NotNil(t, active)

	// adding the same swap twice is refused
	_, err = service.AddSwap("swap-1", Role{}, 1)
	assert.Error(t, err)

	got, ok := service.GetSwap("swap-1")
	require.True(t, ok)
	assert.True(t, got.Side.Role().IsBtcOwner)

	// the initial kick reaches the update function
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&updates) > 0
	}, time.Second, 10*time.Millisecond)
	service.Stop()

	// a fresh service over the same database finds the swap again
	resumed := NewService(db, &mockWallet{}, cfg, update)
	defer resumed.Stop()
	require.NoError(t, resumed.Resume())

	got, ok = resumed.GetSwap("swap-1")
	require.True(t, ok)
	assert.True(t, got.Side.Role().IsBtcOwner)
	assert.True(t, got.Side.Role().IsInitiator)

	amount, err := GetMandatoryParam[uint64](got.Side.store, ParamSwapAmount, SubTxNone)
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), amount)
}
