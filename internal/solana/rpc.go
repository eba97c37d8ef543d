package solana

import "context"

// BalanceClient defines the RPC surface needed to read absolute balances.
type BalanceClient interface {
	// GetBalance retrieves an account's lamport balance.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenAccountBalance retrieves an SPL token account balance in UI
	// units. exists is false when the token account was never created.
	GetTokenAccountBalance(ctx context.Context, tokenAccount string) (amount float64, exists bool, err error)
}
