package swap

import (
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/elementsproject/btcswap/contract"
	"github.com/elementsproject/btcswap/gbitcoin"
)

// Wallet is the set of node operations the bitcoin side needs. It is
// implemented by gbitcoin.Bitcoin; tests substitute a mock. All calls
// are blocking, the BitcoinSide dispatches them off its own goroutine.
type Wallet interface {
	GetRawChangeAddress(addrType gbitcoin.AddrType) (string, error)
	FundRawTx(txHex string) (*gbitcoin.FundRawResult, error)
	SignRawTxWithWallet(txHex string) (*gbitcoin.SignRawResult, error)
	CreateRawTx(ins []*gbitcoin.TxIn, outs []*gbitcoin.TxOut, locktime *uint32) (string, error)
	DumpPrivKey(address string) (string, error)
	SendRawTx(txHex string) (string, error)
	GetTxOut(txid string, vout uint32) (*gbitcoin.TxOutResp, error)
}

// Updater is the swap's connection back into its surrounding
// orchestration: UpdateAsync schedules a re-entry into the swap's
// update cycle, OnFailed routes hard failures (node errors, fraud) to
// the swap's failure handling.
type Updater interface {
	UpdateAsync()
	OnFailed(err error)
}

// Role fixes which side of the contract this party can satisfy and who
// generates the secret. It never changes for the lifetime of a swap.
type Role struct {
	IsInitiator bool `json:"is_initiator"`
	IsBtcOwner  bool `json:"is_btc_owner"`
}

// Config carries the tunable constants of the bitcoin side. They are
// injected at construction so tests can shorten timeouts and thresholds.
type Config struct {
	// LockTimeSec is added to the swap creation time to form the
	// absolute locktime of the refund path.
	LockTimeSec uint64

	// MinTxConfirmations is the depth at which the lock tx is
	// considered final.
	MinTxConfirmations uint32

	// WithdrawFeeSat is the flat fee reserved for the refund and
	// redeem transactions.
	WithdrawFeeSat uint64

	// SecretSize is the required swap secret length in bytes.
	SecretSize int64

	// Chain selects the address encoding of the target network.
	Chain *chaincfg.Params
}

func DefaultConfig(chain *chaincfg.Params) Config {
	return Config{
		LockTimeSec:        2 * 24 * 60 * 60,
		MinTxConfirmations: 6,
		WithdrawFeeSat:     1000,
		SecretSize:         contract.SecretSize,
		Chain:              chain,
	}
}
