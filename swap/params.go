package swap

import (
	"encoding/json"
	"fmt"
)

// SubTxID identifies one of the sub-transactions a swap is composed of.
// Parameters are scoped to a sub-transaction so that the same parameter
// id can be recorded independently for the lock, refund and redeem legs.
type SubTxID int

const (
	// SubTxNone scopes parameters that belong to the swap as a whole.
	SubTxNone SubTxID = iota
	SubTxLock
	SubTxRefund
	SubTxRedeem
	// SubTxCounterRedeem is the redeem of the counter-asset leg. The
	// swap secret is scoped to it because that redemption is what
	// reveals the secret.
	SubTxCounterRedeem
)

func (s SubTxID) String() string {
	switch s {
	case SubTxNone:
		return "swap"
	case SubTxLock:
		return "lock_tx"
	case SubTxRefund:
		return "refund_tx"
	case SubTxRedeem:
		return "redeem_tx"
	case SubTxCounterRedeem:
		return "counter_redeem_tx"
	}
	return fmt.Sprintf("sub_tx_%d", int(s))
}

// ParamID identifies a persisted swap parameter.
type ParamID int

const (
	ParamRole ParamID = iota
	ParamCreatedAt
	ParamSwapAmount
	ParamSwapAddress
	ParamPeerSwapAddress
	ParamExternalLockTime
	ParamPreimage
	ParamPeerLockImage
	ParamState
	ParamExternalTx
	ParamExternalTxID
	ParamExternalOutputIndex
	ParamRegistered
)

func (p ParamID) String() string {
	switch p {
	case ParamRole:
		return "role"
	case ParamCreatedAt:
		return "created_at"
	case ParamSwapAmount:
		return "swap_amount"
	case ParamSwapAddress:
		return "swap_address"
	case ParamPeerSwapAddress:
		return "peer_swap_address"
	case ParamExternalLockTime:
		return "external_lock_time"
	case ParamPreimage:
		return "preimage"
	case ParamPeerLockImage:
		return "peer_lock_image"
	case ParamState:
		return "state"
	case ParamExternalTx:
		return "external_tx"
	case ParamExternalTxID:
		return "external_tx_id"
	case ParamExternalOutputIndex:
		return "external_output_index"
	case ParamRegistered:
		return "registered"
	}
	return fmt.Sprintf("param_%d", int(p))
}

// ParamNotFoundError is returned by GetMandatoryParam when the value is
// not recorded yet. Callers treat it as a transient not-ready condition
// rather than a hard failure, since the value may simply not have
// arrived from the node or the peer yet.
type ParamNotFoundError struct {
	ID    ParamID
	SubTx SubTxID
}

func (e ParamNotFoundError) Error() string {
	return fmt.Sprintf("parameter %s not recorded for %s", e.ID, e.SubTx)
}

// Store persists swap parameters as raw json, keyed by parameter id and
// sub-transaction scope. Implementations must be safe for concurrent
// use.
type Store interface {
	GetParam(id ParamID, subTx SubTxID) ([]byte, bool, error)
	SetParam(id ParamID, subTx SubTxID, data []byte) error
}

// GetParam reads an optional parameter. The second return value
// reports whether the parameter was recorded.
func GetParam[T any](s Store, id ParamID, subTx SubTxID) (T, bool, error) {
	var val T
	data, ok, err := s.GetParam(id, subTx)
	if err != nil || !ok {
		return val, false, err
	}
	if err := json.Unmarshal(data, &val); err != nil {
		return val, false, fmt.Errorf("decode %s for %s: %w", id, subTx, err)
	}
	return val, true, nil
}

// GetMandatoryParam reads a parameter that the current operation cannot
// proceed without, failing with a ParamNotFoundError when it is absent.
func GetMandatoryParam[T any](s Store, id ParamID, subTx SubTxID) (T, error) {
	val, ok, err := GetParam[T](s, id, subTx)
	if err != nil {
		return val, err
	}
	if !ok {
		return val, ParamNotFoundError{ID: id, SubTx: subTx}
	}
	return val, nil
}

// SetParam records a parameter value.
func SetParam[T any](s Store, id ParamID, subTx SubTxID, val T) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", id, subTx, err)
	}
	return s.SetParam(id, subTx, data)
}
