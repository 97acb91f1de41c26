package swap

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AsyncUpdater_RunsUpdates(t *testing.T) {
	var runs int32
	done := make(chan struct{}, 10)
	u := NewAsyncUpdater("swap-test", func() {
		atomic.AddInt32(&runs, 1)
		done <- struct{}{}
	})
	u.Start()
	defer u.Stop()

	u.UpdateAsync()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("update did not run")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func Test_AsyncUpdater_CoalescesKicks(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32
	u := NewAsyncUpdater("swap-test", func() {
		if atomic.AddInt32(&runs, 1) == 1 {
			started <- struct{}{}
			<-release
		}
	})
	u.Start()
	defer u.Stop()

	u.UpdateAsync()
	<-started

	// all of these arrive while the first update runs
	u.UpdateAsync()
	u.UpdateAsync()
	u.UpdateAsync()
	close(release)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) == 2
	}, time.Second, 10*time.Millisecond)

	// and no more than one follow-up run happens
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func Test_AsyncUpdater_KeepsFirstFailure(t *testing.T) {
	u := NewAsyncUpdater("swap-test", func() {})
	u.Start()
	defer u.Stop()

	require.NoError(t, u.Failure())
	first := assert.AnError
	u.OnFailed(first)
	u.OnFailed(&FraudError{SubTx: SubTxLock, Reason: "later"})
	assert.Equal(t, first, u.Failure())
}
