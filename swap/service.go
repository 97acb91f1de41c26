package swap

import (
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/elementsproject/btcswap/log"
)

// ActiveSwap bundles one running swap with its updater.
type ActiveSwap struct {
	ID      string
	Side    *BitcoinSide
	Updater *AsyncUpdater
}

// UpdateFunc is the swap's update cycle, invoked on the updater's
// goroutine whenever the swap should re-examine its state.
type UpdateFunc func(*ActiveSwap)

// Service owns the lifecycle of all swaps: it creates them, persists
// their parameters, resumes unfinished ones after a restart, and stops
// them on shutdown.
type Service struct {
	db     *bbolt.DB
	wallet Wallet
	cfg    Config
	update UpdateFunc

	mu    sync.Mutex
	swaps map[string]*ActiveSwap
}

func NewService(db *bbolt.DB, wallet Wallet, cfg Config, update UpdateFunc) *Service {
	return &Service{
		db:     db,
		wallet: wallet,
		cfg:    cfg,
		update: update,
		swaps:  make(map[string]*ActiveSwap),
	}
}

// AddSwap creates a new swap, persists its defining parameters and
// starts its update loop.
func (s *Service) AddSwap(swapID string, role Role, amountSat uint64) (*ActiveSwap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.swaps[swapID]; ok {
		return nil, fmt.Errorf("swap %s already active", swapID)
	}

	store, err := NewBboltStore(s.db, swapID)
	if err != nil {
		return nil, err
	}
	if err := SetParam(store, ParamRole, SubTxNone, role); err != nil {
		return nil, err
	}
	if err := SetParam(store, ParamCreatedAt, SubTxNone, uint64(time.Now().Unix())); err != nil {
		return nil, err
	}
	if err := SetParam(store, ParamSwapAmount, SubTxNone, amountSat); err != nil {
		return nil, err
	}

	active, err := s.startSwap(swapID, store, role)
	if err != nil {
		return nil, err
	}
	log.Infof("[%s] swap added, initiator=%v btc_owner=%v amount=%d",
		swapID, role.IsInitiator, role.IsBtcOwner, amountSat)
	return active, nil
}

// Resume restarts the update loops of all swaps found in the database.
func (s *Service) Resume() error {
	ids, err := ListSwapIDs(s.db)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.swaps[id]; ok {
			continue
		}
		store, err := NewBboltStore(s.db, id)
		if err != nil {
			return err
		}
		role, err := GetMandatoryParam[Role](store, ParamRole, SubTxNone)
		if err != nil {
			return fmt.Errorf("resume %s: %w", id, err)
		}
		if _, err := s.startSwap(id, store, role); err != nil {
			return err
		}
		log.Infof("[%s] swap resumed", id)
	}
	return nil
}

// startSwap wires side and updater together. Caller holds s.mu.
func (s *Service) startSwap(swapID string, store Store, role Role) (*ActiveSwap, error) {
	active := &ActiveSwap{ID: swapID}
	updater := NewAsyncUpdater(swapID, func() { s.update(active) })
	active.Updater = updater
	active.Side = NewBitcoinSide(swapID, store, s.wallet, updater, s.cfg, role)

	s.swaps[swapID] = active
	updater.Start()
	updater.UpdateAsync()
	return active, nil
}

func (s *Service) GetSwap(swapID string) (*ActiveSwap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.swaps[swapID]
	return a, ok
}

// ForEachSwap calls f for every active swap.
func (s *Service) ForEachSwap(f func(*ActiveSwap)) {
	s.mu.Lock()
	actives := make([]*ActiveSwap, 0, len(s.swaps))
	for _, a := range s.swaps {
		actives = append(actives, a)
	}
	s.mu.Unlock()
	for _, a := range actives {
		f(a)
	}
}

// Stop terminates all update loops.
func (s *Service) Stop() {
	s.mu.Lock()
	actives := make([]*ActiveSwap, 0, len(s.swaps))
	for _, a := range s.swaps {
		actives = append(actives, a)
	}
	s.mu.Unlock()
	for _, a := range actives {
		a.Updater.Stop()
	}
}
