package swap

import (
	"errors"
	"fmt"
)

// ErrIncompleteSignature is reported when the node could only partially
// sign a transaction. The attempt is fatal, the partial result must
// never be recorded as constructed.
var ErrIncompleteSignature = errors.New("node reported incomplete signature")

// FraudError indicates that on-chain data published by the counterparty
// does not match the agreed swap terms. Unlike node errors it is not
// retryable; the swap has to be aborted.
type FraudError struct {
	SubTx  SubTxID
	Reason string
}

func (e *FraudError) Error() string {
	return fmt.Sprintf("fraud detected on %s: %s", e.SubTx, e.Reason)
}

// RegistrationError indicates that a broadcast attempt for a
// sub-transaction was rejected by the network.
type RegistrationError struct {
	SubTx SubTxID
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register %s with the network", e.SubTx)
}

// IsParamNotFound reports whether err is a missing mandatory parameter,
// i.e. a transient not-ready condition the caller should retry later.
func IsParamNotFound(err error) bool {
	var pnf ParamNotFoundError
	return errors.As(err, &pnf)
}
