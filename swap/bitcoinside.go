package swap

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/elementsproject/btcswap/contract"
	"github.com/elementsproject/btcswap/gbitcoin"
	"github.com/elementsproject/btcswap/log"
)

// RawTx is a constructed raw transaction. A nil *RawTx means the
// transaction has not been built yet.
type RawTx struct {
	Hex string
}

// LockTxDetails are the lock transaction facts the orchestrator
// forwards to the peer so it can watch the lock output.
type LockTxDetails struct {
	TxID        string
	OutputIndex uint32
	SwapAddress string
}

// BitcoinSide drives the bitcoin leg of an atomic swap: it builds,
// signs and broadcasts the lock transaction and the refund/redeem
// withdrawals, and tracks lock confirmations.
//
// All entry points are poll driven: they return (false, nil) while an
// asynchronous node round trip is in flight or a required parameter has
// not arrived yet, and are expected to be re-invoked when the Updater
// schedules the next update. Durable state lives in the parameter
// store, so a restarted process picks up where it left off.
type BitcoinSide struct {
	swapID  string
	store   Store
	wallet  Wallet
	updater Updater
	cfg     Config
	role    Role

	mu sync.Mutex

	// at most one node request may be outstanding per sub-transaction
	busy        map[SubTxID]bool
	confirmBusy bool

	lockRawTx     *RawTx
	withdrawRawTx map[SubTxID]*RawTx

	lockConfirmations uint32
	lockFraud         error

	// dispatch runs a node round trip off the caller's goroutine.
	// Tests replace it with an inline call.
	dispatch func(func())
}

func NewBitcoinSide(swapID string, store Store, wallet Wallet, updater Updater, cfg Config, role Role) *BitcoinSide {
	s := &BitcoinSide{
		swapID:        swapID,
		store:         store,
		wallet:        wallet,
		updater:       updater,
		cfg:           cfg,
		role:          role,
		busy:          make(map[SubTxID]bool),
		withdrawRawTx: make(map[SubTxID]*RawTx),
	}
	s.dispatch = func(f func()) { go f() }
	return s
}

func (s *BitcoinSide) Role() Role {
	return s.role
}

// Initial makes sure the swap address and, for the bitcoin owner, the
// swap secret exist. It returns false while the address is still being
// requested from the node.
func (s *BitcoinSide) Initial() (bool, error) {
	s.mu.Lock()
	task, ok, err := s.loadSwapAddress()
	s.mu.Unlock()
	if task != nil {
		s.dispatch(task)
	}
	if err != nil || !ok {
		return false, err
	}

	if s.role.IsBtcOwner {
		if err := s.initSecret(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// loadSwapAddress checks for a recorded swap address and, when absent,
// returns the node request that fetches one. Caller holds s.mu.
func (s *BitcoinSide) loadSwapAddress() (func(), bool, error) {
	_, ok, err := GetParam[string](s.store, ParamSwapAddress, SubTxNone)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	if s.busy[SubTxNone] {
		return nil, false, nil
	}
	s.busy[SubTxNone] = true
	return func() {
		// the contract relies on DUP HASH160 of the key, so the
		// address has to be a legacy p2pkh one
		addr, err := s.wallet.GetRawChangeAddress(gbitcoin.Legacy)
		s.onRawChangeAddress(addr, err)
	}, false, nil
}

func (s *BitcoinSide) onRawChangeAddress(addr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, SubTxNone)

	if err != nil {
		s.updater.OnFailed(fmt.Errorf("getrawchangeaddress: %w", err))
		return
	}
	// don't overwrite an address recorded in the meantime
	_, ok, gerr := GetParam[string](s.store, ParamSwapAddress, SubTxNone)
	if gerr != nil {
		s.updater.OnFailed(gerr)
		return
	}
	if ok {
		return
	}
	if serr := SetParam(s.store, ParamSwapAddress, SubTxNone, addr); serr != nil {
		s.updater.OnFailed(serr)
		return
	}
	log.Debugf("[%s] swap address %s", s.swapID, addr)
	s.updater.UpdateAsync()
}

// initSecret generates the swap secret once. It is revealed only when
// the counter-asset redeem happens, hence its scope.
func (s *BitcoinSide) initSecret() error {
	_, ok, err := GetParam[[]byte](s.store, ParamPreimage, SubTxCounterRedeem)
	if err != nil || ok {
		return err
	}
	preimage := make([]byte, s.cfg.SecretSize)
	if _, err := rand.Read(preimage); err != nil {
		return err
	}
	return SetParam(s.store, ParamPreimage, SubTxCounterRedeem, preimage)
}

// InitLockTime derives the refund locktime from the swap creation time
// exactly once. Recomputing it later with a different clock would
// desynchronize the two parties' contract scripts.
func (s *BitcoinSide) InitLockTime() error {
	_, ok, err := GetParam[uint64](s.store, ParamExternalLockTime, SubTxNone)
	if err != nil || ok {
		return err
	}
	createdAt, err := GetMandatoryParam[uint64](s.store, ParamCreatedAt, SubTxNone)
	if err != nil {
		return err
	}
	lockTime := createdAt + s.cfg.LockTimeSec
	log.Debugf("[%s] external locktime %d", s.swapID, lockTime)
	return SetParam(s.store, ParamExternalLockTime, SubTxNone, lockTime)
}

// LockTxDetails returns the published facts of our lock transaction.
func (s *BitcoinSide) LockTxDetails() (*LockTxDetails, error) {
	txID, err := GetMandatoryParam[string](s.store, ParamExternalTxID, SubTxLock)
	if err != nil {
		return nil, err
	}
	vout, err := GetMandatoryParam[uint32](s.store, ParamExternalOutputIndex, SubTxLock)
	if err != nil {
		return nil, err
	}
	addr, err := GetMandatoryParam[string](s.store, ParamSwapAddress, SubTxNone)
	if err != nil {
		return nil, err
	}
	return &LockTxDetails{TxID: txID, OutputIndex: vout, SwapAddress: addr}, nil
}

// contractScript recomputes the contract from the recorded swap
// parameters. Both parties arrive at the same bytes without ever
// exchanging the script itself.
func (s *BitcoinSide) contractScript() ([]byte, error) {
	lockTime, err := GetMandatoryParam[uint64](s.store, ParamExternalLockTime, SubTxNone)
	if err != nil {
		return nil, err
	}
	swapAddr, err := GetMandatoryParam[string](s.store, ParamSwapAddress, SubTxNone)
	if err != nil {
		return nil, err
	}
	peerAddr, err := GetMandatoryParam[string](s.store, ParamPeerSwapAddress, SubTxNone)
	if err != nil {
		return nil, err
	}

	var secretHash []byte
	preimage, ok, err := GetParam[[]byte](s.store, ParamPreimage, SubTxCounterRedeem)
	if err != nil {
		return nil, err
	}
	if ok {
		h := sha256.Sum256(preimage)
		secretHash = h[:]
	} else {
		secretHash, err = GetMandatoryParam[[]byte](s.store, ParamPeerLockImage, SubTxCounterRedeem)
		if err != nil {
			return nil, err
		}
	}

	senderAddr, receiverAddr := swapAddr, peerAddr
	if !s.role.IsBtcOwner {
		senderAddr, receiverAddr = peerAddr, swapAddr
	}
	hashA, err := pubkeyHash(senderAddr, s.cfg.Chain)
	if err != nil {
		return nil, err
	}
	hashB, err := pubkeyHash(receiverAddr, s.cfg.Chain)
	if err != nil {
		return nil, err
	}

	return contract.Build(hashA, hashB, int64(lockTime), secretHash, s.cfg.SecretSize)
}

func pubkeyHash(addr string, chain *chaincfg.Params) ([]byte, error) {
	a, err := btcutil.DecodeAddress(addr, chain)
	if err != nil {
		return nil, fmt.Errorf("decode address %s: %w", addr, err)
	}
	return a.ScriptAddress(), nil
}

// SendLockTx builds the lock transaction and hands it to the
// registration gate once constructed. Returns true when the lock tx is
// registered with the network.
func (s *BitcoinSide) SendLockTx() (bool, error) {
	s.mu.Lock()
	state, task, err := s.buildLockTx()
	s.mu.Unlock()
	if task != nil {
		s.dispatch(task)
	}
	if err != nil {
		if IsParamNotFound(err) {
			log.Debugf("[%s] lock tx not ready: %v", s.swapID, err)
			return false, nil
		}
		return false, err
	}
	if state != State_Constructed {
		return false, nil
	}

	s.mu.Lock()
	rawTx := s.lockRawTx
	s.mu.Unlock()
	if rawTx == nil {
		return false, fmt.Errorf("lock tx constructed but raw transaction missing")
	}
	return s.register(rawTx.Hex, SubTxLock)
}

// buildLockTx advances the lock tx build machine by one step. Caller
// holds s.mu.
func (s *BitcoinSide) buildLockTx() (SwapTxState, func(), error) {
	state, err := GetState(s.store, SubTxLock)
	if err != nil {
		return state, nil, err
	}

	switch state {
	case State_Initial:
		draftHex, err := s.lockTxDraft()
		if err != nil {
			return state, nil, err
		}
		// persist the transition before the request goes out so a
		// crash in between resumes instead of re-running Initial
		if err := SetState(s.store, SubTxLock, State_CreatingTx); err != nil {
			return state, nil, err
		}
		s.busy[SubTxLock] = true
		return State_CreatingTx, func() { s.fundAndSignLockTx(draftHex) }, nil

	case State_CreatingTx:
		if s.busy[SubTxLock] {
			return state, nil, nil
		}
		// restarted mid flight, the draft never reached the store;
		// rebuild it and fund again
		draftHex, err := s.lockTxDraft()
		if err != nil {
			return state, nil, err
		}
		s.busy[SubTxLock] = true
		return state, func() { s.fundAndSignLockTx(draftHex) }, nil

	case State_Constructed:
		if s.lockRawTx == nil {
			rawHex, err := GetMandatoryParam[string](s.store, ParamExternalTx, SubTxLock)
			if err != nil {
				return state, nil, err
			}
			s.lockRawTx = &RawTx{Hex: rawHex}
		}
	}
	return state, nil, nil
}

// lockTxDraft builds the unfunded single-output draft paying the swap
// amount to the contract script.
func (s *BitcoinSide) lockTxDraft() (string, error) {
	script, err := s.contractScript()
	if err != nil {
		return "", err
	}
	amount, err := GetMandatoryParam[uint64](s.store, ParamSwapAmount, SubTxNone)
	if err != nil {
		return "", err
	}

	draft := wire.NewMsgTx(2)
	draft.AddTxOut(wire.NewTxOut(int64(amount), script))

	var buf bytes.Buffer
	if err := draft.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (s *BitcoinSide) fundAndSignLockTx(draftHex string) {
	funded, err := s.wallet.FundRawTx(draftHex)
	if err != nil {
		s.clearBusy(SubTxLock)
		s.updater.OnFailed(fmt.Errorf("fundrawtransaction: %w", err))
		return
	}

	// funding added a change output; ours is the one change was not
	// placed at
	vout := uint32(0)
	if funded.ChangePosition == 0 {
		vout = 1
	}

	s.mu.Lock()
	state, err := GetState(s.store, SubTxLock)
	if err != nil || state != State_CreatingTx {
		delete(s.busy, SubTxLock)
		s.mu.Unlock()
		if err != nil {
			s.updater.OnFailed(err)
		}
		return
	}
	if err := SetParam(s.store, ParamExternalOutputIndex, SubTxLock, vout); err != nil {
		delete(s.busy, SubTxLock)
		s.mu.Unlock()
		s.updater.OnFailed(err)
		return
	}
	s.mu.Unlock()

	signed, err := s.wallet.SignRawTxWithWallet(funded.TxString)
	if err != nil {
		s.clearBusy(SubTxLock)
		s.updater.OnFailed(fmt.Errorf("signrawtransactionwithwallet: %w", err))
		return
	}
	s.onSignLockTx(signed)
}

func (s *BitcoinSide) onSignLockTx(signed *gbitcoin.SignRawResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, SubTxLock)

	state, err := GetState(s.store, SubTxLock)
	if err != nil {
		s.updater.OnFailed(err)
		return
	}
	if state == State_Constructed {
		// duplicate response, the signed tx is already recorded
		return
	}
	if !signed.Complete {
		s.updater.OnFailed(fmt.Errorf("lock tx: %w", ErrIncompleteSignature))
		return
	}

	if err := SetParam(s.store, ParamExternalTx, SubTxLock, signed.Hex); err != nil {
		s.updater.OnFailed(err)
		return
	}
	s.lockRawTx = &RawTx{Hex: signed.Hex}
	if err := SetState(s.store, SubTxLock, State_Constructed); err != nil {
		s.updater.OnFailed(err)
		return
	}
	log.Debugf("[%s] lock tx constructed", s.swapID)
	s.updater.UpdateAsync()
}

// RefundDue reports whether the refund locktime has been reached at
// the given unix time. The refund transaction carries that locktime as
// its nLockTime, so broadcasting it earlier gets rejected as non-final.
func (s *BitcoinSide) RefundDue(now uint64) (bool, error) {
	lockTime, ok, err := GetParam[uint64](s.store, ParamExternalLockTime, SubTxNone)
	if err != nil || !ok {
		return false, err
	}
	return now >= lockTime, nil
}

// SendRefund builds and registers the refund withdrawal. The network
// only accepts it once the contract's locktime has passed; gate on
// RefundDue before driving this.
func (s *BitcoinSide) SendRefund() (bool, error) {
	return s.sendWithdrawTx(SubTxRefund)
}

// SendRedeem builds and registers the redeem withdrawal, revealing the
// swap secret on chain.
func (s *BitcoinSide) SendRedeem() (bool, error) {
	return s.sendWithdrawTx(SubTxRedeem)
}

func (s *BitcoinSide) sendWithdrawTx(subTx SubTxID) (bool, error) {
	s.mu.Lock()
	state, task, err := s.buildWithdrawTx(subTx)
	s.mu.Unlock()
	if task != nil {
		s.dispatch(task)
	}
	if err != nil {
		if IsParamNotFound(err) {
			log.Debugf("[%s] %s not ready: %v", s.swapID, subTx, err)
			return false, nil
		}
		return false, err
	}
	if state != State_Constructed {
		return false, nil
	}

	s.mu.Lock()
	rawTx := s.withdrawRawTx[subTx]
	s.mu.Unlock()
	if rawTx == nil {
		return false, fmt.Errorf("%s constructed but raw transaction missing", subTx)
	}
	return s.register(rawTx.Hex, subTx)
}

// buildWithdrawTx advances the withdraw build machine for the refund or
// redeem sub-transaction by one step. Caller holds s.mu.
func (s *BitcoinSide) buildWithdrawTx(subTx SubTxID) (SwapTxState, func(), error) {
	state, err := GetState(s.store, subTx)
	if err != nil {
		return state, nil, err
	}

	switch state {
	case State_Initial:
		ins, outs, lockTime, err := s.withdrawDraftArgs(subTx)
		if err != nil {
			return state, nil, err
		}
		if err := SetState(s.store, subTx, State_CreatingTx); err != nil {
			return state, nil, err
		}
		s.busy[subTx] = true
		return State_CreatingTx, func() { s.createWithdrawTx(subTx, ins, outs, lockTime) }, nil

	case State_CreatingTx:
		if s.busy[subTx] {
			return state, nil, nil
		}
		if s.withdrawRawTx[subTx] == nil {
			// the unsigned draft is never persisted; after a restart
			// ask the node for it again
			ins, outs, lockTime, err := s.withdrawDraftArgs(subTx)
			if err != nil {
				return state, nil, err
			}
			s.busy[subTx] = true
			return state, func() { s.createWithdrawTx(subTx, ins, outs, lockTime) }, nil
		}
		swapAddr, err := GetMandatoryParam[string](s.store, ParamSwapAddress, SubTxNone)
		if err != nil {
			return state, nil, err
		}
		s.busy[subTx] = true
		return state, func() { s.signWithdrawTx(subTx, swapAddr) }, nil

	case State_Constructed:
		if s.withdrawRawTx[subTx] == nil {
			rawHex, err := GetMandatoryParam[string](s.store, ParamExternalTx, subTx)
			if err != nil {
				return state, nil, err
			}
			s.withdrawRawTx[subTx] = &RawTx{Hex: rawHex}
		}
	}
	return state, nil, nil
}

func (s *BitcoinSide) withdrawDraftArgs(subTx SubTxID) ([]*gbitcoin.TxIn, []*gbitcoin.TxOut, *uint32, error) {
	amount, err := GetMandatoryParam[uint64](s.store, ParamSwapAmount, SubTxNone)
	if err != nil {
		return nil, nil, nil, err
	}
	if amount <= s.cfg.WithdrawFeeSat {
		return nil, nil, nil, fmt.Errorf("swap amount %d does not cover the withdraw fee %d", amount, s.cfg.WithdrawFeeSat)
	}
	swapAddr, err := GetMandatoryParam[string](s.store, ParamSwapAddress, SubTxNone)
	if err != nil {
		return nil, nil, nil, err
	}
	lockTxID, err := GetMandatoryParam[string](s.store, ParamExternalTxID, SubTxLock)
	if err != nil {
		return nil, nil, nil, err
	}
	vout, err := GetMandatoryParam[uint32](s.store, ParamExternalOutputIndex, SubTxLock)
	if err != nil {
		return nil, nil, nil, err
	}

	// a final sequence would disable locktime checking, so stay one
	// below the maximum
	ins := []*gbitcoin.TxIn{{
		TxId:     lockTxID,
		Vout:     uint(vout),
		Sequence: uint(wire.MaxTxInSequenceNum - 1),
	}}
	outs := []*gbitcoin.TxOut{{
		Address: swapAddr,
		Satoshi: amount - s.cfg.WithdrawFeeSat,
	}}

	var lockTime *uint32
	if subTx == SubTxRefund {
		// CLTV only passes when the spending tx itself carries the
		// contract's locktime
		external, err := GetMandatoryParam[uint64](s.store, ParamExternalLockTime, SubTxNone)
		if err != nil {
			return nil, nil, nil, err
		}
		lt := uint32(external)
		lockTime = &lt
	}
	return ins, outs, lockTime, nil
}

func (s *BitcoinSide) createWithdrawTx(subTx SubTxID, ins []*gbitcoin.TxIn, outs []*gbitcoin.TxOut, lockTime *uint32) {
	rawHex, err := s.wallet.CreateRawTx(ins, outs, lockTime)

	s.mu.Lock()
	delete(s.busy, subTx)
	if err != nil {
		s.mu.Unlock()
		s.updater.OnFailed(fmt.Errorf("createrawtransaction: %w", err))
		return
	}
	if s.withdrawRawTx[subTx] == nil {
		s.withdrawRawTx[subTx] = &RawTx{Hex: rawHex}
	}
	s.mu.Unlock()
	s.updater.UpdateAsync()
}

func (s *BitcoinSide) signWithdrawTx(subTx SubTxID, swapAddr string) {
	wifStr, err := s.wallet.DumpPrivKey(swapAddr)
	if err != nil {
		s.clearBusy(subTx)
		s.updater.OnFailed(fmt.Errorf("dumpprivkey: %w", err))
		return
	}
	s.onDumpPrivKey(subTx, wifStr)
}

// onDumpPrivKey signs input 0 of the withdraw draft against the
// recomputed contract script and attaches the branch's unlocking
// script.
func (s *BitcoinSide) onDumpPrivKey(subTx SubTxID, wifStr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, subTx)

	state, err := GetState(s.store, subTx)
	if err != nil {
		s.updater.OnFailed(err)
		return
	}
	draft := s.withdrawRawTx[subTx]
	if state != State_CreatingTx || draft == nil {
		// stale response, nothing left to sign
		return
	}

	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		s.updater.OnFailed(fmt.Errorf("decode wif: %w", err))
		return
	}

	withdrawTx := wire.NewMsgTx(2)
	txBytes, err := hex.DecodeString(draft.Hex)
	if err == nil {
		err = withdrawTx.Deserialize(bytes.NewReader(txBytes))
	}
	if err != nil {
		s.updater.OnFailed(fmt.Errorf("decode %s draft: %w", subTx, err))
		return
	}

	script, err := s.contractScript()
	if err != nil {
		s.updater.OnFailed(err)
		return
	}
	sig, err := txscript.RawTxInSignature(withdrawTx, 0, script, txscript.SigHashAll, wif.PrivKey)
	if err != nil {
		s.updater.OnFailed(fmt.Errorf("sign %s: %w", subTx, err))
		return
	}
	pubkey := wif.SerializePubKey()

	var sigScript []byte
	if subTx == SubTxRefund {
		sigScript, err = contract.RefundScript(sig, pubkey)
	} else {
		var secret []byte
		secret, err = GetMandatoryParam[[]byte](s.store, ParamPreimage, SubTxCounterRedeem)
		if err == nil {
			sigScript, err = contract.RedeemScript(sig, pubkey, secret)
		}
	}
	if err != nil {
		s.updater.OnFailed(err)
		return
	}

	withdrawTx.TxIn[0].SignatureScript = sigScript
	var buf bytes.Buffer
	if err := withdrawTx.Serialize(&buf); err != nil {
		s.updater.OnFailed(err)
		return
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	if err := SetParam(s.store, ParamExternalTx, subTx, rawHex); err != nil {
		s.updater.OnFailed(err)
		return
	}
	s.withdrawRawTx[subTx] = &RawTx{Hex: rawHex}
	if err := SetState(s.store, subTx, State_Constructed); err != nil {
		s.updater.OnFailed(err)
		return
	}
	log.Debugf("[%s] %s constructed", s.swapID, subTx)
	s.updater.UpdateAsync()
}

// register broadcasts a constructed transaction at most once. Once a
// registration result is recorded it is returned without touching the
// network again.
func (s *BitcoinSide) register(rawTx string, subTx SubTxID) (bool, error) {
	registered, ok, err := GetParam[bool](s.store, ParamRegistered, subTx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.mu.Lock()
		fire := !s.busy[subTx]
		if fire {
			s.busy[subTx] = true
		}
		s.mu.Unlock()
		if fire {
			s.dispatch(func() { s.sendRawTx(rawTx, subTx) })
		}
		return false, nil
	}
	if !registered {
		return false, &RegistrationError{SubTx: subTx}
	}
	return true, nil
}

func (s *BitcoinSide) sendRawTx(rawTx string, subTx SubTxID) {
	txID, err := s.wallet.SendRawTx(rawTx)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, subTx)

	if err != nil {
		s.updater.OnFailed(fmt.Errorf("sendrawtransaction %s: %w", subTx, err))
		return
	}
	if _, ok, gerr := GetParam[bool](s.store, ParamRegistered, subTx); gerr != nil {
		s.updater.OnFailed(gerr)
		return
	} else if ok {
		// duplicate response, the result is already recorded
		return
	}

	registered := txID != ""
	if err := SetParam(s.store, ParamRegistered, subTx, registered); err != nil {
		s.updater.OnFailed(err)
		return
	}
	if registered {
		if err := SetParam(s.store, ParamExternalTxID, subTx, txID); err != nil {
			s.updater.OnFailed(err)
			return
		}
		log.Infof("[%s] %s registered as %s", s.swapID, subTx, txID)
	} else {
		log.Infof("[%s] %s rejected by the network", s.swapID, subTx)
	}
	s.updater.UpdateAsync()
}

// ConfirmLockTx polls the lock output until it has the required number
// of confirmations. It validates the on-chain script and value against
// the agreed swap terms on every response; a mismatch is treated as
// counterparty fraud and stops confirmation for good.
func (s *BitcoinSide) ConfirmLockTx() (bool, error) {
	txID, ok, err := GetParam[string](s.store, ParamExternalTxID, SubTxLock)
	if err != nil {
		return false, err
	}
	if !ok {
		// still waiting for the peer to announce the lock tx
		return false, nil
	}
	vout, err := GetMandatoryParam[uint32](s.store, ParamExternalOutputIndex, SubTxLock)
	if err != nil {
		if IsParamNotFound(err) {
			return false, nil
		}
		return false, err
	}

	s.mu.Lock()
	if s.lockFraud != nil {
		err := s.lockFraud
		s.mu.Unlock()
		return false, err
	}
	if s.lockConfirmations >= s.cfg.MinTxConfirmations {
		s.mu.Unlock()
		return true, nil
	}
	fire := !s.confirmBusy
	if fire {
		s.confirmBusy = true
	}
	s.mu.Unlock()

	if fire {
		s.dispatch(func() { s.fetchLockTxOut(txID, vout) })
	}
	return false, nil
}

// LockTxConfirmations returns the last confirmation count reported by
// the node for the lock output.
func (s *BitcoinSide) LockTxConfirmations() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockConfirmations
}

func (s *BitcoinSide) fetchLockTxOut(txID string, vout uint32) {
	out, err := s.wallet.GetTxOut(txID, vout)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmBusy = false

	if err != nil {
		s.updater.OnFailed(fmt.Errorf("gettxout: %w", err))
		return
	}
	if out == nil || out.ScriptPubKey == nil {
		// output unknown to the node (unseen, spent or reorged),
		// leave the count untouched and try again on the next poll
		return
	}

	expected, err := s.contractScript()
	if err != nil {
		s.updater.OnFailed(err)
		return
	}
	gotScript, err := hex.DecodeString(out.ScriptPubKey.Hex)
	if err != nil || !bytes.Equal(gotScript, expected) {
		fraud := &FraudError{
			SubTx:  SubTxLock,
			Reason: "lock output script does not match the agreed contract",
		}
		s.lockFraud = fraud
		s.updater.OnFailed(fraud)
		return
	}

	swapAmount, err := GetMandatoryParam[uint64](s.store, ParamSwapAmount, SubTxNone)
	if err != nil {
		s.updater.OnFailed(err)
		return
	}
	outputAmount, err := btcutil.NewAmount(out.Value)
	if err != nil {
		s.updater.OnFailed(fmt.Errorf("gettxout value: %w", err))
		return
	}
	if uint64(outputAmount) < swapAmount {
		fraud := &FraudError{
			SubTx:  SubTxLock,
			Reason: fmt.Sprintf("lock output value %d below swap amount %d", outputAmount, swapAmount),
		}
		s.lockFraud = fraud
		s.updater.OnFailed(fraud)
		return
	}

	if out.Confirmations > s.lockConfirmations {
		s.lockConfirmations = out.Confirmations
	}
	log.Debugf("[%s] lock tx confirmations %d/%d", s.swapID, s.lockConfirmations, s.cfg.MinTxConfirmations)
	if s.lockConfirmations >= s.cfg.MinTxConfirmations {
		s.updater.UpdateAsync()
	}
}

func (s *BitcoinSide) clearBusy(subTx SubTxID) {
	s.mu.Lock()
	delete(s.busy, subTx)
	s.mu.Unlock()
}
