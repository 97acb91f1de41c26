// Package contract builds the hash-time-locked contract script that
// locks the bitcoin leg of an atomic swap, plus the unlocking scripts
// for its two spend paths.
package contract

import (
	"github.com/btcsuite/btcd/txscript"
)

// SecretSize is the required length of the swap secret in bytes. Fixing
// the length lets the redeeming party audit the preimage size, which
// prevents fraud between two chains with different maximum push sizes.
const SecretSize = 32

// Build returns the contract output script. It can be spent either by
// the receiver (hashB) revealing a preimage of secretHash before any
// time limit, or by the original sender (hashA) after lockTime:
//
//	OP_IF
//	  OP_SIZE <secretSize> OP_EQUALVERIFY
//	  OP_SHA256 <secretHash> OP_EQUALVERIFY
//	  OP_DUP OP_HASH160 <hashB>
//	OP_ELSE
//	  <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	  OP_DUP OP_HASH160 <hashA>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
//
// The OP_EQUALVERIFY OP_CHECKSIG tail applies to both branches and sits
// outside the conditional to save a couple of bytes. The script is a
// deterministic function of its inputs; both parties recompute it from
// the published swap parameters and compare the result byte for byte.
func Build(hashA, hashB []byte, lockTime int64, secretHash []byte, secretSize int64) ([]byte, error) {
	b := txscript.NewScriptBuilder()

	b.AddOp(txscript.OP_IF) // Normal redeem path
	{
		b.AddOp(txscript.OP_SIZE)
		b.AddInt64(secretSize)
		b.AddOp(txscript.OP_EQUALVERIFY)

		b.AddOp(txscript.OP_SHA256)
		b.AddData(secretHash)
		b.AddOp(txscript.OP_EQUALVERIFY)

		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(hashB)
	}
	b.AddOp(txscript.OP_ELSE) // Refund path
	{
		// CLTV leaves the locktime on the stack, drop it ourselves.
		b.AddInt64(lockTime)
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)

		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(hashA)
	}
	b.AddOp(txscript.OP_ENDIF)

	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)

	return b.Script()
}

// RedeemScript returns the unlocking script for the redeem path:
// <sig> <pubkey> <secret> 1. The trailing 1 selects the OP_IF branch
// and the secret is revealed on chain in the process.
func RedeemScript(sig, pubkey, secret []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddData(pubkey)
	b.AddData(secret)
	b.AddInt64(1)
	return b.Script()
}

// RefundScript returns the unlocking script for the refund path:
// <sig> <pubkey> 0. The spending transaction must set its own locktime
// to at least the contract's locktime for CLTV to pass.
func RefundScript(sig, pubkey []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddData(pubkey)
	b.AddInt64(0)
	return b.Script()
}
