// Package reconcile turns decoded transaction events into ledger mutations:
// it diffs per-transaction token balance snapshots into wrapped-balance
// deltas and applies them, together with native absolutes, to the registry.
package reconcile

import (
	"errors"

	"solana-wallet-watch/internal/domain"
)

// ErrMalformedEvent marks a transaction record missing required sub-fields.
// The event is dropped and processing continues; the stream is never torn
// down over a single bad envelope.
var ErrMalformedEvent = errors.New("malformed transaction event")

// WrappedDelta is one owner's wrapped-balance movement within a transaction.
// If the owner holds several token accounts for the mint, their movements are
// summed into a single delta.
type WrappedDelta struct {
	Owner  string
	Amount float64
}

// ExtractWrappedDeltas computes per-owner deltas for the given mint from the
// event's before/after token balance sets. Matching before entries are found
// by AccountIndex; a post entry without a pre counterpart is diffed against a
// zero baseline (the token account was created in this transaction). Entries
// for other mints or untracked owners are ignored. Pure computation, no side
// effects.
func ExtractWrappedDeltas(event *domain.TransactionEvent, tracked map[string]bool, mint string) ([]WrappedDelta, error) {
	if event == nil || event.Signature == "" {
		return nil, ErrMalformedEvent
	}
	// The decoder always materializes both sets when the transaction meta is
	// present; a nil after set means the envelope lost its meta in transit.
	if event.PostTokenBalances == nil || event.NativeLamports == nil {
		return nil, ErrMalformedEvent
	}

	pre := make(map[int]float64, len(event.PreTokenBalances))
	for _, b := range event.PreTokenBalances {
		if b.Mint == mint {
			pre[b.AccountIndex] = b.Amount
		}
	}

	byOwner := make(map[string]float64)
	var order []string
	for _, b := range event.PostTokenBalances {
		if b.Mint == "" || b.Owner == "" {
			return nil, ErrMalformedEvent
		}
		if b.Mint != mint || !tracked[b.Owner] {
			continue
		}
		if _, seen := byOwner[b.Owner]; !seen {
			order = append(order, b.Owner)
		}
		byOwner[b.Owner] += b.Amount - pre[b.AccountIndex]
	}

	deltas := make([]WrappedDelta, 0, len(order))
	for _, owner := range order {
		deltas = append(deltas, WrappedDelta{Owner: owner, Amount: byOwner[owner]})
	}
	return deltas, nil
}
