// Package domain defines the core types shared across the wallet monitor.
package domain

import "time"

// WSOLMint is the mint address of wrapped SOL.
const WSOLMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL converts raw lamport balances to SOL.
const LamportsPerSOL = 1_000_000_000

// TokenBalance is one token-account balance observation taken from a
// transaction's pre or post balance set. The same AccountIndex in both sets
// identifies the same token account across the transaction.
type TokenBalance struct {
	AccountIndex int     // position of the token account in the transaction's account list
	Mint         string  // token mint address
	Owner        string  // wallet that owns the token account
	Amount       float64 // balance in UI units (decimals applied)
}

// TransactionEvent is one decoded transaction touching at least one tracked
// account, as delivered by the stream adapter.
//
// NativeLamports carries the absolute post-transaction lamport balance for
// every tracked account the transaction touched. Wrapped-token movement is
// expressed only through the pre/post token balance sets and must be
// reconstructed by diffing.
type TransactionEvent struct {
	Signature         string
	Slot              int64
	Timestamp         time.Time
	NativeLamports    map[string]uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}
