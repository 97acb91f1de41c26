package swap

// SwapTxState is the build state of a single sub-transaction. The state
// is persisted per sub-transaction so that after a restart the machine
// resumes from the last recorded step instead of re-running it.
type SwapTxState string

const (
	State_Initial     SwapTxState = "State_Initial"
	State_CreatingTx  SwapTxState = "State_CreatingTx"
	State_Constructed SwapTxState = "State_Constructed"
)

// GetState returns the recorded build state of a sub-transaction,
// defaulting to State_Initial when nothing is recorded yet.
func GetState(s Store, subTx SubTxID) (SwapTxState, error) {
	state, ok, err := GetParam[SwapTxState](s, ParamState, subTx)
	if err != nil {
		return State_Initial, err
	}
	if !ok || state == "" {
		return State_Initial, nil
	}
	return state, nil
}

// SetState records the build state of a sub-transaction.
func SetState(s Store, subTx SubTxID, state SwapTxState) error {
	return SetParam(s, ParamState, subTx, state)
}
