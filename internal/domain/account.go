package domain

import "time"

// AccountSummary is the externally visible state of one tracked account.
// WrappedInitialized is false until the wrapped balance has been bootstrapped
// from RPC; until then WrappedBalance reads as zero and TotalBalance covers
// the native side only, so readers can tell a degraded account apart from one
// that genuinely holds no wrapped tokens.
type AccountSummary struct {
	Address            string    `json:"address"`
	Name               string    `json:"name"`
	NativeBalance      float64   `json:"native_balance"`
	WrappedBalance     float64   `json:"wrapped_balance"`
	TotalBalance       float64   `json:"total_balance"`
	WrappedInitialized bool      `json:"wrapped_initialized"`
	LastUpdate         time.Time `json:"last_update"`
}
