package txwatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyBlockchain struct {
	sync.Mutex
	height uint64
}

func (d *dummyBlockchain) GetBlockHeight() (uint64, error) {
	d.Lock()
	defer d.Unlock()
	return d.height, nil
}

func (d *dummyBlockchain) setHeight(h uint64) {
	d.Lock()
	defer d.Unlock()
	d.height = h
}

func Test_BlockWatcher_NotifiesOnNewBlock(t *testing.T) {
	chain := &dummyBlockchain{height: 100}
	watcher := NewBlockWatcher(chain, 10*time.Millisecond)

	notified := make(chan struct{}, 10)
	watcher.AddWatcher("swap-a", func() { notified <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.StartWatchingTxs(ctx))
	assert.Equal(t, uint64(100), watcher.GetBlockHeight())

	// no new block, no callback
	select {
	case <-notified:
		t.Fatal("callback fired without a new block")
	case <-time.After(50 * time.Millisecond):
	}

	chain.setHeight(101)
	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire on new block")
	}
	assert.Equal(t, uint64(101), watcher.GetBlockHeight())
}

func Test_BlockWatcher_RemoveWatcher(t *testing.T) {
	chain := &dummyBlockchain{height: 100}
	watcher := NewBlockWatcher(chain, 10*time.Millisecond)

	notified := make(chan struct{}, 10)
	watcher.AddWatcher("swap-a", func() { notified <- struct{}{} })
	watcher.RemoveWatcher("swap-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.StartWatchingTxs(ctx))

	chain.setHeight(101)
	select {
	case <-notified:
		t.Fatal("removed watcher still fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_BlockWatcher_IgnoresStaleHeights(t *testing.T) {
	chain := &dummyBlockchain{height: 100}
	watcher := NewBlockWatcher(chain, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.StartWatchingTxs(ctx))

	// a node answering with an older height must not move us back
	chain.setHeight(99)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(100), watcher.GetBlockHeight())
}
