package txwatcher

import (
	"context"
	"sync"
	"time"

	"github.com/elementsproject/btcswap/log"
)

// BlockchainRpc is the minimal node surface the watcher polls.
type BlockchainRpc interface {
	GetBlockHeight() (uint64, error)
}

// BlockWatcher polls the node's block height and pokes the registered
// swap callbacks whenever a new block arrives, so confirmation checks
// run once per block instead of once per timer tick.
type BlockWatcher struct {
	blockchain BlockchainRpc
	interval   time.Duration

	sync.Mutex
	currentHeight uint64
	watchers      map[string]func()
}

func NewBlockWatcher(blockchain BlockchainRpc, interval time.Duration) *BlockWatcher {
	return &BlockWatcher{
		blockchain: blockchain,
		interval:   interval,
		watchers:   make(map[string]func()),
	}
}

// StartWatchingTxs runs the poll loop until ctx is cancelled.
func (s *BlockWatcher) StartWatchingTxs(ctx context.Context) error {
	height, err := s.blockchain.GetBlockHeight()
	if err != nil {
		return err
	}
	s.Lock()
	s.currentHeight = height
	s.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				newHeight, err := s.blockchain.GetBlockHeight()
				if err != nil {
					log.Infof("blockwatcher: getblockcount: %v", err)
					continue
				}
				if s.advance(newHeight) {
					s.notify()
				}
			}
		}
	}()
	return nil
}

func (s *BlockWatcher) advance(newHeight uint64) bool {
	s.Lock()
	defer s.Unlock()
	if newHeight <= s.currentHeight {
		return false
	}
	s.currentHeight = newHeight
	return true
}

func (s *BlockWatcher) notify() {
	s.Lock()
	callbacks := make([]func(), 0, len(s.watchers))
	for _, cb := range s.watchers {
		callbacks = append(callbacks, cb)
	}
	s.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

// AddWatcher registers a callback to be invoked on every new block.
// Re-adding under the same id replaces the previous callback.
func (s *BlockWatcher) AddWatcher(id string, cb func()) {
	s.Lock()
	defer s.Unlock()
	s.watchers[id] = cb
}

func (s *BlockWatcher) RemoveWatcher(id string) {
	s.Lock()
	defer s.Unlock()
	delete(s.watchers, id)
}

// GetBlockHeight returns the last observed chain height.
func (s *BlockWatcher) GetBlockHeight() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.currentHeight
}
