package policy

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

const (
	defaultMinTxConfirmations = 6
	defaultLockTimeSec        = 2 * 24 * 60 * 60
	defaultWithdrawFeeSat     = 1000
	defaultMinSwapAmountSat   = 100000
)

// Policy is the node operator's swap acceptance and safety settings.
// It is read from an ini file; unset fields keep their defaults.
type Policy struct {
	// MinTxConfirmations is the depth a lock transaction needs before
	// the counter-asset leg proceeds.
	MinTxConfirmations uint32 `json:"min_tx_confirmations" long:"min_tx_confirmations" description:"Minimum confirmations required on the lock transaction."`

	// LockTimeSec is the refund locktime window in seconds, counted
	// from swap creation.
	LockTimeSec uint64 `json:"lock_time_sec" long:"lock_time_sec" description:"Refund locktime in seconds from swap creation."`

	// WithdrawFeeSat is the flat fee reserved for refund and redeem
	// transactions.
	WithdrawFeeSat uint64 `json:"withdraw_fee_sat" long:"withdraw_fee_sat" description:"Flat fee in satoshi for withdraw transactions."`

	// MinSwapAmountSat rejects swaps whose value would be dominated
	// by fees.
	MinSwapAmountSat uint64 `json:"min_swap_amount_sat" long:"min_swap_amount_sat" description:"Minimum accepted swap amount in satoshi."`
}

func (p *Policy) String() string {
	str := fmt.Sprintf(
		"min_tx_confirmations: %d\n"+
			"lock_time_sec: %d\n"+
			"withdraw_fee_sat: %d\n"+
			"min_swap_amount_sat: %d\n",
		p.MinTxConfirmations,
		p.LockTimeSec,
		p.WithdrawFeeSat,
		p.MinSwapAmountSat,
	)
	return str
}

// IsAmountAccepted reports whether a proposed swap amount passes the
// operator's minimum.
func (p *Policy) IsAmountAccepted(amountSat uint64) bool {
	return amountSat >= p.MinSwapAmountSat
}

func DefaultPolicy() *Policy {
	return &Policy{
		MinTxConfirmations: defaultMinTxConfirmations,
		LockTimeSec:        defaultLockTimeSec,
		WithdrawFeeSat:     defaultWithdrawFeeSat,
		MinSwapAmountSat:   defaultMinSwapAmountSat,
	}
}

// CreateFromFile returns the policy from the file at path. A missing
// file is not an error, the defaults apply.
func CreateFromFile(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}
	defer file.Close()
	return create(file)
}

func create(r io.Reader) (*Policy, error) {
	policy := DefaultPolicy()
	err := flags.NewIniParser(flags.NewParser(policy, flags.IgnoreUnknown)).Parse(r)
	if err != nil {
		return nil, err
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p *Policy) validate() error {
	var problems []string
	if p.MinTxConfirmations == 0 {
		problems = append(problems, "min_tx_confirmations must be at least 1")
	}
	if p.LockTimeSec == 0 {
		problems = append(problems, "lock_time_sec must be positive")
	}
	if p.MinSwapAmountSat <= p.WithdrawFeeSat {
		problems = append(problems, "min_swap_amount_sat must exceed withdraw_fee_sat")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid policy: %s", strings.Join(problems, "; "))
	}
	return nil
}
