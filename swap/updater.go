package swap

import (
	"sync"

	"github.com/elementsproject/btcswap/log"
)

// AsyncUpdater serializes re-entries into a swap's update function on a
// single goroutine. UpdateAsync coalesces: any number of requests while
// an update runs result in exactly one follow-up run.
type AsyncUpdater struct {
	swapID string
	update func()

	kick chan struct{}
	quit chan struct{}

	wg sync.WaitGroup

	mu      sync.Mutex
	failure error
}

func NewAsyncUpdater(swapID string, update func()) *AsyncUpdater {
	return &AsyncUpdater{
		swapID: swapID,
		update: update,
		kick:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

func (u *AsyncUpdater) Start() {
	u.wg.Add(1)
	go u.loop()
}

func (u *AsyncUpdater) loop() {
	defer u.wg.Done()
	for {
		select {
		case <-u.kick:
			u.update()
		case <-u.quit:
			return
		}
	}
}

// UpdateAsync schedules an update run. It never blocks; a pending kick
// already covers this request.
func (u *AsyncUpdater) UpdateAsync() {
	select {
	case u.kick <- struct{}{}:
	default:
	}
}

// OnFailed records the first hard failure and schedules an update run
// so the swap logic can observe it.
func (u *AsyncUpdater) OnFailed(err error) {
	u.mu.Lock()
	if u.failure == nil {
		u.failure = err
	}
	u.mu.Unlock()
	log.Infof("[%s] swap failure: %v", u.swapID, err)
	u.UpdateAsync()
}

// Failure returns the first recorded hard failure, or nil.
func (u *AsyncUpdater) Failure() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.failure
}

// Stop terminates the update loop and waits for an in-flight update to
// finish.
func (u *AsyncUpdater) Stop() {
	close(u.quit)
	u.wg.Wait()
}
